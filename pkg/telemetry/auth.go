package telemetry

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
)

// Argon2id parameters for the channel password.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// hashPassword derives an Argon2id hash with a random salt and encodes it in
// PHC form: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.NewInternalError("failed to generate password salt", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyPassword checks password against a PHC hash from hashPassword.
func verifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.NewParseError("invalid password hash format", nil)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, errors.NewParseError("invalid password hash version", err)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, errors.NewParseError("invalid password hash parameters", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.NewParseError("invalid password hash salt", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errors.NewParseError("invalid password hash digest", err)
	}

	candidate := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// authenticate checks the supplied password and updates the client's place
// in the authenticated set. A client that has failed too many times in a row
// is refused without evaluation until its lockout expires.
func (s *Server) authenticate(client *Client, password string) bool {
	if s.passwordHash == "" {
		s.hub.setAuthenticated(client, false)
		return false
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	now := time.Now()
	if now.Before(client.lockedUntil) {
		return false
	}

	ok, err := verifyPassword(password, s.passwordHash)
	if err != nil {
		s.logger.Errorf("Password verification failed, error: %v", err)
	}
	if ok {
		client.failures = 0
		s.hub.setAuthenticated(client, true)
		return true
	}

	s.hub.setAuthenticated(client, false)
	client.failures++
	if s.config.MaxAuthFailures > 0 && client.failures >= s.config.MaxAuthFailures {
		client.failures = 0
		client.lockedUntil = now.Add(s.config.AuthLockout)
	}
	return false
}
