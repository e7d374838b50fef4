package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sessioncore/identity"
	"sessioncore/internal/util"
	"sessioncore/storage"
)

const usersBucket = "users"

// userRecord is the persisted account shape. The password never appears:
// only the argon2id-derived key and its salt/parameters are stored.
type userRecord struct {
	ID        string              `json:"id"`
	Email     string              `json:"email"`
	FullName  string              `json:"full_name,omitempty"`
	Role      identity.Role       `json:"role"`
	Salt      []byte              `json:"salt"`
	PassKey   []byte              `json:"pass_key"`
	KDFParams util.Argon2idParams `json:"kdf_params"`
	CreatedAt time.Time           `json:"created_at"`
}

func (p *Provider) loadUser(email string) (*userRecord, error) {
	data, err := p.repo.Get(usersBucket, util.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBucketNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding user record: %w", err)
	}
	return &rec, nil
}

func (p *Provider) saveUser(rec *userRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding user record: %w", err)
	}
	if err := p.repo.Put(usersBucket, util.NormalizeEmail(rec.Email), data); err != nil {
		return fmt.Errorf("persisting user: %w", err)
	}
	return nil
}

func (p *Provider) findUserByID(id string) (*userRecord, error) {
	emails, err := p.repo.List(usersBucket)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for _, email := range emails {
		rec, err := p.loadUser(email)
		if err != nil {
			continue
		}
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (rec *userRecord) checkPassword(password string) bool {
	return util.CompareArgon2idKey(util.Normalize(password), rec.Salt, rec.KDFParams, rec.PassKey)
}

func (rec *userRecord) setPassword(password string) error {
	salt, err := util.RandomBytes(16)
	if err != nil {
		return err
	}
	params := util.DefaultArgon2idParams()
	key := util.DeriveArgon2idKey(util.Normalize(password), salt, params)
	util.WipeBytes(rec.PassKey)
	rec.Salt = salt
	rec.PassKey = key
	rec.KDFParams = params
	return nil
}

func (rec *userRecord) user() *identity.User {
	return &identity.User{
		ID:       rec.ID,
		Email:    rec.Email,
		FullName: rec.FullName,
		Role:     rec.Role,
	}
}
