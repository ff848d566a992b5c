package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/logger"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/realtime"
	"github.com/kazak5205/mebelplace-sub009/internal/realtime/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var probeOpts struct {
	url    string
	token  string
	userID int64
	role   string
	rooms  []string
}

var ProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Connect to a realtime gateway, join rooms and print every event",
	Long: `Connect to a realtime gateway with the reconnecting client, join the
given rooms and print each received event until interrupted.

Either pass --token, or pass --user to mint a short-lived token with the
configured JWT secret.`,
	Example: `  mebelplace-rt probe --user 2 --role master --room order:1 --room chat:5`,
	RunE:    runProbe,
}

func init() {
	f := ProbeCmd.Flags()
	f.StringVar(&probeOpts.url, "url", "ws://localhost:8029/ws", "gateway websocket url")
	f.StringVar(&probeOpts.token, "token", os.Getenv("MEBELPLACE_PROBE_TOKEN"), "bearer token")
	f.Int64Var(&probeOpts.userID, "user", 0, "mint a token for this user id")
	f.StringVar(&probeOpts.role, "role", model.RoleClient, "role for a minted token")
	f.StringSliceVar(&probeOpts.rooms, "room", nil, "room to join, repeatable")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	token := probeOpts.token
	if token == "" && probeOpts.userID > 0 {
		jwtAuth := auth.NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
		if token, err = jwtAuth.IssueToken(probeOpts.userID, probeOpts.role, cfg.Auth.TokenTTL); err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
	}

	m := client.New(client.Config{
		URL:         probeOpts.url,
		BaseDelay:   cfg.Realtime.Reconnect.BaseDelay,
		MaxAttempts: cfg.Realtime.Reconnect.MaxAttempts,
		Logger:      log,
	})
	defer func() { _ = m.Close() }()

	printEvents(m, cmd.OutOrStdout())
	m.OnStatus(func(state client.State, err error) {
		fields := []zap.Field{zap.String("state", string(state))}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		log.Info("connection state", fields...)
	})

	sess, err := m.Connect(ctx, client.Credentials{Token: token})
	if err != nil {
		return err
	}
	log.Info("connected", zap.String("session", sess.ID), zap.Int64("user_id", sess.UserID), zap.String("role", sess.Role))

	for _, room := range probeOpts.rooms {
		m.JoinRoom(room)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-m.Errors():
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// printEvents writes one line per received event.
func printEvents(m *client.Manager, w io.Writer) {
	var mu sync.Mutex
	seen := make(map[realtime.EventType]bool)
	for _, ev := range append(realtime.OutboundEvents(), realtime.InboundEvents()...) {
		if seen[ev] {
			continue
		}
		seen[ev] = true
		event := ev
		m.On(event, func(data json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			_, _ = fmt.Fprintf(w, "%s %s\n", event, data)
		})
	}
}
