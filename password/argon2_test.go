package password

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheapConfig keeps the suite fast; the floors still apply.
func cheapConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	require.NoError(t, err)
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := newHasher(t, cheapConfig())

	encoded, err := h.Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"), encoded)

	ok, err := h.Verify("correct horse battery", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("correct horse battery!", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := newHasher(t, cheapConfig())

	a, err := h.Hash("same-password-twice")
	require.NoError(t, err)
	b, err := h.Hash("same-password-twice")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyAcceptsPaddedBase64(t *testing.T) {
	h := newHasher(t, cheapConfig())

	p := phc{memory: 8 * 1024, time: 1, parallelism: 1, salt: []byte("saltsaltsaltsalt")}
	p.key = p.derive("padded-encoding-1")
	padded := "$argon2id$v=19$m=8192,t=1,p=1$" +
		base64.StdEncoding.EncodeToString(p.salt) + "$" +
		base64.StdEncoding.EncodeToString(p.key)
	require.True(t, strings.HasSuffix(padded, "="))

	ok, err := h.Verify("padded-encoding-1", padded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordLengthLimits(t *testing.T) {
	cfg := cheapConfig()
	cfg.MaxPasswordBytes = 64
	h := newHasher(t, cfg)

	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrTooShort)
	_, err = h.Hash(strings.Repeat("s", MinPasswordBytes-1))
	assert.ErrorIs(t, err, ErrTooShort)
	_, err = h.Hash(strings.Repeat("l", 65))
	assert.ErrorIs(t, err, ErrTooLong)

	exact := strings.Repeat("e", 64)
	encoded, err := h.Hash(exact)
	require.NoError(t, err)

	ok, err := h.Verify(exact, encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.Verify(strings.Repeat("l", 65), encoded)
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestDefaultMaxPasswordBytes(t *testing.T) {
	h := newHasher(t, cheapConfig())

	_, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrTooLong)
	_, err = h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes))
	assert.NoError(t, err)
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, cheapConfig())
	encoded, err := weak.Hash("upgrade-me-please")
	require.NoError(t, err)

	up, err := weak.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.False(t, up, "same parameters")

	stronger := cheapConfig()
	stronger.Time = 2
	up, err = newHasher(t, stronger).NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, up, "higher time cost")

	longer := cheapConfig()
	longer.KeyLength = 48
	up, err = newHasher(t, longer).NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, up, "different key length")
}

func TestDecodeRejectsBadHashes(t *testing.T) {
	h := newHasher(t, cheapConfig())
	good, err := h.Hash("decode-cases-pass")
	require.NoError(t, err)
	parts := strings.Split(good, "$")

	with := func(i int, v string) string {
		cp := append([]string(nil), parts...)
		cp[i] = v
		return strings.Join(cp, "$")
	}

	cases := map[string]string{
		"not phc":         "plain-text",
		"other algorithm": with(1, "argon2i"),
		"bcrypt":          "$2b$10$abcdefghijklmnopqrstuu5Zq2iW2m5d2R4m5c3uJXo9Ylz3W",
		"missing version": with(2, "19"),
		"old version":     with(2, "v=16"),
		"two params":      with(3, "m=8192,t=1"),
		"unknown param":   with(3, "m=8192,t=1,x=1"),
		"low memory":      with(3, "m=1024,t=1,p=1"),
		"zero time":       with(3, "m=8192,t=0,p=1"),
		"short salt":      with(4, b64.EncodeToString([]byte("short"))),
		"bad salt":        with(4, "!!!"),
		"empty key":       with(5, ""),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.Verify("decode-cases-pass", encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)

			_, err = h.NeedsUpgrade(encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	mutate := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"max bytes":   func(c *Config) { c.MaxPasswordBytes = 4 },
		"negative":    func(c *Config) { c.MaxPasswordBytes = -1 },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			cfg := cheapConfig()
			fn(&cfg)
			_, err := NewArgon2(cfg)
			assert.Error(t, err)
		})
	}
}

func TestVerifyDummy(t *testing.T) {
	h := newHasher(t, cheapConfig())
	assert.NotPanics(t, func() {
		h.VerifyDummy("anything-at-all")
		h.VerifyDummy(strings.Repeat("x", 4*DefaultMaxPasswordBytes))
	})
}
