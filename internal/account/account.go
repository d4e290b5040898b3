// Package account holds the signed-in user as an explicit context that is
// loaded at start-up and saved at sign-in and sign-out.
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/internal/storage"
)

// StorageKey is where the signed-in user is persisted.
const StorageKey = "reviewGreenUser"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmptyPassword      = errors.New("password is required")
	ErrSignedOut          = errors.New("no user signed in")
)

type User struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// Store is the slice of the on-device database the context needs.
type Store interface {
	GetValue(key string) (string, error)
	PutValue(key, value string) error
	DeleteValue(key string) error
	GetAccount(email string) (*storage.Account, error)
	SaveAccount(account *storage.Account) error
}

type Context struct {
	store Store

	mu   sync.RWMutex
	user *User
}

// Load rehydrates the signed-in user. A corrupt record is removed and the
// context starts signed out.
func Load(store Store) (*Context, error) {
	c := &Context{store: store}

	raw, err := store.GetValue(StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.Email == "" {
		logging.Warnf("account: discarding unreadable stored user")
		if err := store.DeleteValue(StorageKey); err != nil {
			return nil, fmt.Errorf("error removing stored user: %w", err)
		}
		return c, nil
	}

	c.user = &user
	logging.Infof("account: restored session for %s", user.Email)
	return c, nil
}

func (c *Context) User() (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return User{}, false
	}
	return *c.user, true
}

func (c *Context) SignedIn() bool {
	_, ok := c.User()
	return ok
}

// SignIn signs in with an email and password. The first sign-in for an email
// registers it on this device; later ones must match the stored password.
func (c *Context) SignIn(email, password string) (User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return User{}, ErrInvalidEmail
	}
	if password == "" {
		return User{}, ErrEmptyPassword
	}
	email = strings.ToLower(addr.Address)

	account, err := c.store.GetAccount(email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		account = &storage.Account{Email: email, PasswordHash: string(hash), CreatedAt: time.Now().UTC()}
		if err := c.store.SaveAccount(account); err != nil {
			return User{}, fmt.Errorf("error saving account: %w", err)
		}
		logging.Infof("account: registered %s", email)
	case err != nil:
		return User{}, fmt.Errorf("error loading account: %w", err)
	default:
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
			return User{}, ErrInvalidCredentials
		}
	}

	user := User{Name: displayName(email), Email: email}
	if err := c.save(user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Guest is the one-tap explorer profile. It has no password and is never
// registered as an account.
var Guest = User{Name: "Green Explorer", Email: "explorer@example.com"}

// SignInAsGuest signs in with the explorer profile.
func (c *Context) SignInAsGuest() (User, error) {
	if err := c.save(Guest); err != nil {
		return User{}, err
	}
	logging.Infof("account: signed in as %s", Guest.Name)
	return Guest, nil
}

// SignOut forgets the signed-in user on this device.
func (c *Context) SignOut() error {
	if err := c.store.DeleteValue(StorageKey); err != nil {
		return fmt.Errorf("error removing stored user: %w", err)
	}
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
	return nil
}

func (c *Context) save(user User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("error marshalling user: %w", err)
	}
	if err := c.store.PutValue(StorageKey, string(data)); err != nil {
		return fmt.Errorf("error saving user: %w", err)
	}
	c.mu.Lock()
	c.user = &user
	c.mu.Unlock()
	return nil
}

func displayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
