package card

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	userBucketName        = "users"
	userByEmailBucketName = "users_by_email"
	cardBucketName        = "cards"
	sessionBucketName     = "sessions"
)

// DB defines the persistence operations the service needs.
type DB interface {
	// SaveUser stores a user and indexes it by email.
	SaveUser(user *User) error

	// GetUser retrieves a user by ID.
	GetUser(id string) (*User, error)

	// GetUserByEmail retrieves a user by email address.
	GetUserByEmail(email string) (*User, error)

	// SaveCard stores a card.
	SaveCard(card *Card) error

	// GetCard retrieves a card by ID.
	GetCard(id string) (*Card, error)

	// ListCards returns all cards.
	ListCards() ([]*Card, error)

	// DeleteCard removes a card.
	DeleteCard(id string) error

	// SaveSession stores a login session.
	SaveSession(session *SessionToken) error

	// GetSession retrieves a session by token.
	GetSession(token string) (*SessionToken, error)

	// DeleteSession removes a session.
	DeleteSession(token string) error

	// Close closes the database.
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database file and its buckets.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{userBucketName, userByEmailBucketName, cardBucketName, sessionBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveUser stores a user and its email index entry in one transaction.
func (b *BoltDB) SaveUser(user *User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		if err := tx.Bucket([]byte(userBucketName)).Put([]byte(user.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(userByEmailBucketName)).Put([]byte(user.Email), []byte(user.ID))
	})
}

// GetUser retrieves a user by ID.
func (b *BoltDB) GetUser(id string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(userBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user through the email index.
func (b *BoltDB) GetUserByEmail(email string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(userByEmailBucketName)).Get([]byte(email))
		if id == nil {
			return fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		data := tx.Bucket([]byte(userBucketName)).Get(id)
		if data == nil {
			return fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SaveCard stores a card.
func (b *BoltDB) SaveCard(card *Card) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(card)
		if err != nil {
			return fmt.Errorf("marshaling card: %w", err)
		}
		return tx.Bucket([]byte(cardBucketName)).Put([]byte(card.ID), data)
	})
}

// GetCard retrieves a card by ID.
func (b *BoltDB) GetCard(id string) (*Card, error) {
	var card *Card
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cardBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("card %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListCards returns all cards.
func (b *BoltDB) ListCards() ([]*Card, error) {
	cards := make([]*Card, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cardBucketName)).ForEach(func(k, v []byte) error {
			var card Card
			if err := json.Unmarshal(v, &card); err != nil {
				return fmt.Errorf("unmarshaling card: %w", err)
			}
			cards = append(cards, &card)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// DeleteCard removes a card.
func (b *BoltDB) DeleteCard(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cardBucketName)).Delete([]byte(id))
	})
}

// SaveSession stores a login session.
func (b *BoltDB) SaveSession(session *SessionToken) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		return tx.Bucket([]byte(sessionBucketName)).Put([]byte(session.Token), data)
	})
}

// GetSession retrieves a session by token.
func (b *BoltDB) GetSession(token string) (*SessionToken, error) {
	var session *SessionToken
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucketName)).Get([]byte(token))
		if data == nil {
			return fmt.Errorf("session: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session.
func (b *BoltDB) DeleteSession(token string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucketName)).Delete([]byte(token))
	})
}

// Close closes the database connection.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
