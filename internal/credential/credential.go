// Package credential resolves the API key a batch runs with.
//
// A batch asks its Source once, before the first call, so a key that was
// changed in the environment or in a .env file is picked up by the next
// batch without restarting the process.
package credential

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

var ErrMissing = errors.New("no API key selected")

type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// Static always returns the same key.
type Static string

func (s Static) APIKey(context.Context) (string, error) {
	key := strings.TrimSpace(string(s))
	if key == "" {
		return "", ErrMissing
	}
	return key, nil
}

// Env looks Var up in the given dotenv files, re-read on every call, and
// then in the process environment.
type Env struct {
	Var   string
	Files []string
}

func (e Env) APIKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, file := range e.Files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		if v := strings.TrimSpace(values[e.Var]); v != "" {
			return v, nil
		}
	}

	if v := strings.TrimSpace(os.Getenv(e.Var)); v != "" {
		return v, nil
	}
	return "", ErrMissing
}

// Chain tries each source in order and returns the first key found.
type Chain []Source

func (c Chain) APIKey(ctx context.Context) (string, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		key, err := s.APIKey(ctx)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrMissing) {
			return "", err
		}
	}
	return "", ErrMissing
}
