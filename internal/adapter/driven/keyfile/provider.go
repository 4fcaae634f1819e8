// Package keyfile resolves the vault's encryption key from an explicit value,
// the environment-supplied value, or an owner-only key file that it creates
// on first use.
package keyfile

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ericfisherdev/homevault/internal/adapter/driven/crypto"
	"github.com/ericfisherdev/homevault/internal/domain/model"
	"github.com/ericfisherdev/homevault/internal/secfile"
)

// Source records where the active key came from.
type Source string

const (
	SourceExplicit  Source = "explicit"
	SourceEnv       Source = "env"
	SourceFile      Source = "file"
	SourceGenerated Source = "generated"
)

// Options configures a Provider. Resolution order is Explicit, EnvValue,
// the file at Path, and finally a newly generated key written to Path.
type Options struct {
	Explicit *crypto.Key
	EnvValue string // Raw value of the key environment variable, if set.
	Path     string
	Logger   *slog.Logger
}

// Provider resolves the key once and caches it for the process lifetime.
type Provider struct {
	opts   Options
	logger *slog.Logger

	once   sync.Once
	key    crypto.Key
	source Source
	err    error
}

// NewProvider creates a Provider. Nothing is read until Key is called.
func NewProvider(opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{opts: opts, logger: logger}
}

// Key returns the active key. Any error is a *model.ConfigurationError and is
// cached along with the key: a provider that failed once keeps failing.
func (p *Provider) Key() (crypto.Key, error) {
	p.once.Do(func() {
		p.key, p.source, p.err = p.resolve()
		if p.err == nil {
			p.logger.Info("encryption key loaded",
				"source", p.source,
				"fingerprint", p.key.Fingerprint(),
			)
		}
	})
	return p.key, p.err
}

// Source reports where the key came from. It is empty until Key succeeds.
func (p *Provider) Source() Source {
	_, _ = p.Key()
	return p.source
}

func (p *Provider) resolve() (crypto.Key, Source, error) {
	if p.opts.Explicit != nil {
		return *p.opts.Explicit, SourceExplicit, nil
	}

	if p.opts.EnvValue != "" {
		key, err := crypto.ParseKey(p.opts.EnvValue)
		if err != nil {
			return crypto.Key{}, "", &model.ConfigurationError{Msg: "key from environment", Err: err}
		}
		return key, SourceEnv, nil
	}

	if p.opts.Path == "" {
		return crypto.Key{}, "", &model.ConfigurationError{Msg: "no key file path configured"}
	}

	key, err := readKeyFile(p.opts.Path)
	if err == nil {
		return key, SourceFile, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return crypto.Key{}, "", err
	}

	return p.generate()
}

// generate writes a new key to a private temp file and links it into place.
// Link fails if the path already exists, so exactly one key file is ever
// created; a caller that loses the race adopts the winner's key.
func (p *Provider) generate() (crypto.Key, Source, error) {
	path := p.opts.Path
	dir := filepath.Dir(path)
	if err := secfile.EnsureDir(dir); err != nil {
		return crypto.Key{}, "", err
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return crypto.Key{}, "", &model.ConfigurationError{Msg: "generate key", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".key-*")
	if err != nil {
		return crypto.Key{}, "", &model.ConfigurationError{Path: dir, Msg: "create temp key file", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeAndClose(tmp, key); err != nil {
		return crypto.Key{}, "", &model.ConfigurationError{Path: tmpPath, Msg: "write key", Err: err}
	}
	if err := secfile.Restrict(tmpPath); err != nil {
		return crypto.Key{}, "", err
	}

	err = os.Link(tmpPath, path)
	switch {
	case errors.Is(err, fs.ErrExist):
		existing, readErr := readKeyFile(path)
		if readErr != nil {
			return crypto.Key{}, "", readErr
		}
		p.logger.Info("key file created concurrently, using existing key", "path", path)
		return existing, SourceFile, nil
	case err != nil:
		return crypto.Key{}, "", &model.ConfigurationError{Path: path, Msg: "install key file", Err: err}
	}

	if err := secfile.CheckFile(path); err != nil {
		return crypto.Key{}, "", err
	}
	p.logger.Warn("generated new encryption key", "path", path)
	return key, SourceGenerated, nil
}

func writeAndClose(f *os.File, key crypto.Key) error {
	if _, err := f.WriteString(key.Encode() + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// readKeyFile loads an existing key file after checking that neither the
// file nor its directory is readable by anyone but the owner. A missing file
// is returned unwrapped so callers can test for fs.ErrNotExist.
func readKeyFile(path string) (crypto.Key, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return crypto.Key{}, err
	}
	if err != nil {
		return crypto.Key{}, &model.ConfigurationError{Path: path, Msg: "read key file", Err: err}
	}

	if err := secfile.CheckFile(path); err != nil {
		return crypto.Key{}, err
	}
	if err := secfile.CheckDir(filepath.Dir(path)); err != nil {
		return crypto.Key{}, err
	}

	key, err := crypto.ParseKey(string(data))
	if err != nil {
		return crypto.Key{}, &model.ConfigurationError{Path: path, Msg: "parse key file", Err: err}
	}
	return key, nil
}
