// Package seed loads development fixtures from YAML.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/pkg/keys"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type User struct {
	ID       int64  `yaml:"id"`
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
}

type Order struct {
	ID          int64             `yaml:"id"`
	ClientID    int64             `yaml:"client_id"`
	MasterID    *int64            `yaml:"master_id"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Status      model.OrderStatus `yaml:"status"`
}

type Video struct {
	ID       int64  `yaml:"id"`
	AuthorID int64  `yaml:"author_id"`
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
}

type Story struct {
	ID       int64 `yaml:"id"`
	AuthorID int64 `yaml:"author_id"`
}

// ServiceKey holds a full bearer value; only its lookup and hash are stored.
type ServiceKey struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

type Fixtures struct {
	Users       []User       `yaml:"users"`
	Orders      []Order      `yaml:"orders"`
	Videos      []Video      `yaml:"videos"`
	Stories     []Story      `yaml:"stories"`
	ServiceKeys []ServiceKey `yaml:"service_keys"`
}

func Decode(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

func LoadFile(path string) (*Fixtures, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Decode(fh)
}

// Apply upserts the fixtures by primary key in one transaction.
func Apply(ctx context.Context, db *gorm.DB, cfg *config.Config, f *Fixtures) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := func(row any) error {
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
		}

		for _, u := range f.Users {
			role := u.Role
			if role == "" {
				role = model.RoleClient
			}
			if err := upsert(&model.User{ID: u.ID, Username: u.Username, Role: role, IsActive: true}); err != nil {
				return fmt.Errorf("user %q: %w", u.Username, err)
			}
		}
		for _, o := range f.Orders {
			status := o.Status
			if status == "" {
				status = model.OrderPending
			}
			if !status.Valid() {
				return fmt.Errorf("order %d: unknown status %q", o.ID, status)
			}
			row := &model.Order{ID: o.ID, ClientID: o.ClientID, MasterID: o.MasterID, Title: o.Title, Description: o.Description, Status: status}
			if err := upsert(row); err != nil {
				return fmt.Errorf("order %d: %w", o.ID, err)
			}
		}
		for _, v := range f.Videos {
			if err := upsert(&model.Video{ID: v.ID, AuthorID: v.AuthorID, Title: v.Title, Category: v.Category}); err != nil {
				return fmt.Errorf("video %d: %w", v.ID, err)
			}
		}
		for _, s := range f.Stories {
			if err := upsert(&model.Story{ID: s.ID, AuthorID: s.AuthorID}); err != nil {
				return fmt.Errorf("story %d: %w", s.ID, err)
			}
		}
		for _, k := range f.ServiceKeys {
			secret, ok := keys.Parse(k.Token, cfg.Auth.ServiceKeyPrefix)
			if !ok {
				return fmt.Errorf("service key %q: token must start with %q", k.Name, cfg.Auth.ServiceKeyPrefix)
			}
			phc, err := keys.Hash(secret, cfg.Auth.SecretPepper)
			if err != nil {
				return fmt.Errorf("service key %q: %w", k.Name, err)
			}
			row := &model.ServiceKey{Name: k.Name, SecretKeyHMAC: keys.Lookup(cfg.Auth.SecretPepper, secret), SecretKeyHashPHC: phc}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "secret_key_hmac"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "secret_key_hash_phc"}),
			}).Create(row).Error
			if err != nil {
				return fmt.Errorf("service key %q: %w", k.Name, err)
			}
		}
		return nil
	})
}
