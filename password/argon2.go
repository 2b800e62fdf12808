package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrTooShort is returned by Hash for passwords under MinPasswordBytes.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned by Hash and Verify for inputs over the configured cap.
	ErrTooLong = errors.New("password exceeds maximum length")
	// ErrInvalidHash is the class of every stored-hash decoding failure.
	ErrInvalidHash = errors.New("invalid argon2id hash")
)

// Hasher is what the credential validator needs from a password scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	VerifyDummy(password string)
}

const (
	// MinPasswordBytes is the shortest password Hash accepts.
	MinPasswordBytes = 10
	// DefaultMaxPasswordBytes caps input length when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024

	floorMemoryKiB   uint32 = 8 * 1024
	floorSaltLength  uint32 = 16
	floorKeyLength   uint32 = 16
	phcAlgorithmName        = "argon2id"
)

var b64 = base64.RawStdEncoding

// Config holds argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes bounds hashing work per request; zero means DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

// DefaultConfig returns the interactive-login parameters used by the engine.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) check() error {
	switch {
	case c.Memory < floorMemoryKiB:
		return fmt.Errorf("password: memory must be >= %d KiB", floorMemoryKiB)
	case c.Time < 1:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < floorSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", floorSaltLength)
	case c.KeyLength < floorKeyLength:
		return fmt.Errorf("password: key length must be >= %d", floorKeyLength)
	case c.MaxPasswordBytes < 0, c.MaxPasswordBytes > 0 && c.MaxPasswordBytes < MinPasswordBytes:
		return fmt.Errorf("password: max bytes must be 0 or >= %d", MinPasswordBytes)
	}
	return nil
}

// phc is a decoded argon2id hash in PHC string format.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithmName, argon2.Version,
		p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

func invalidHash(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidHash, fmt.Sprintf(format, args...))
}

// decodePHC parses $argon2id$v=19$m=..,t=..,p=..$salt$key. Standard padded base64 is
// accepted as well as the raw encoding Hash produces.
func decodePHC(s string) (phc, error) {
	var p phc

	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, invalidHash("expected 5 fields")
	}
	if fields[1] != phcAlgorithmName {
		return p, invalidHash("unsupported algorithm %q", fields[1])
	}

	version, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return p, invalidHash("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return p, invalidHash("unsupported version %q", version)
	}

	seen := 0
	for _, param := range strings.Split(fields[3], ",") {
		name, value, ok := strings.Cut(param, "=")
		if !ok {
			return p, invalidHash("bad parameter %q", param)
		}
		switch name {
		case "m":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(n) < floorMemoryKiB {
				return p, invalidHash("bad memory %q", value)
			}
			p.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || n < 1 {
				return p, invalidHash("bad time %q", value)
			}
			p.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil || n < 1 {
				return p, invalidHash("bad parallelism %q", value)
			}
			p.parallelism = uint8(n)
		default:
			return p, invalidHash("unknown parameter %q", name)
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return p, invalidHash("parameters m, t and p are required")
	}

	var err error
	if p.salt, err = decodeB64(fields[4]); err != nil || uint32(len(p.salt)) < floorSaltLength {
		return p, invalidHash("bad salt")
	}
	if p.key, err = decodeB64(fields[5]); err != nil || len(p.key) == 0 {
		return p, invalidHash("bad key")
	}
	return p, nil
}

func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return b64.DecodeString(s)
}

// Argon2 is a [Hasher] producing PHC-encoded argon2id hashes. It is safe for concurrent use.
type Argon2 struct {
	cfg Config

	dummyOnce sync.Once
	dummy     phc
}

// NewArgon2 checks cfg against the package floors.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a key for password under a fresh random salt. Password bytes are used as
// given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	switch {
	case len(password) < MinPasswordBytes:
		return "", ErrTooShort
	case len(password) > a.cfg.MaxPasswordBytes:
		return "", ErrTooLong
	}

	p, err := a.fresh()
	if err != nil {
		return "", err
	}
	p.key = argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, a.cfg.KeyLength)
	return p.String(), nil
}

func (a *Argon2) fresh() (phc, error) {
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return phc{}, fmt.Errorf("password: read salt: %w", err)
	}
	return phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        salt,
	}, nil
}

// Verify derives a key with the parameters stored in encodedHash and compares it in
// constant time.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.cfg.MaxPasswordBytes {
		return false, ErrTooLong
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was derived with weaker parameters, or a
// different key length, than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.cfg.Memory || p.time < a.cfg.Time || p.parallelism < a.cfg.Parallelism
	return weaker || uint32(len(p.key)) != a.cfg.KeyLength, nil
}

// VerifyDummy spends the work of one Verify against a throwaway key. Callers use it for
// unknown accounts so that response time does not reveal whether an account exists.
func (a *Argon2) VerifyDummy(password string) {
	a.dummyOnce.Do(func() {
		p, err := a.fresh()
		if err != nil {
			return
		}
		p.key = make([]byte, a.cfg.KeyLength)
		a.dummy = p
	})
	if a.dummy.key == nil {
		return
	}
	if len(password) > a.cfg.MaxPasswordBytes {
		password = password[:a.cfg.MaxPasswordBytes]
	}
	_ = subtle.ConstantTimeCompare(a.dummy.derive(password), a.dummy.key)
}
