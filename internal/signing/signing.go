// Package signing computes and checks HMAC-SHA256 authenticity tags over the
// immutable fields of a memory.
//
// Content is not part of the payload: decay rewrites it in place and must
// never invalidate a signature. OriginalContent is signed instead.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lazypower/ltm/internal/model"
)

// timeLayout matches the millisecond precision the store persists.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload returns the canonical bytes that are signed for m: id, agent id,
// region, project id, kind, original content, impact and creation time,
// joined by "|".
func Payload(m *model.Memory) []byte {
	created := ""
	if !m.CreatedAt.IsZero() {
		created = m.CreatedAt.UTC().Format(timeLayout)
	}
	parts := []string{
		m.ID,
		m.AgentID,
		string(m.Region),
		m.ProjectID,
		string(m.Kind),
		m.OriginalContent,
		string(m.Impact),
		created,
	}
	return []byte(strings.Join(parts, "|"))
}

// Sign returns the hex-encoded tag for m under key. It is deterministic.
func Sign(m *model.Memory, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(Payload(m))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether tag authenticates m under key. A missing tag never
// verifies.
func Verify(m *model.Memory, tag, key string) bool {
	if tag == "" {
		return false
	}
	expected := Sign(m, key)
	return hmac.Equal([]byte(tag), []byte(expected))
}

// ShouldSign reports whether new memories of agent are signed.
func ShouldSign(agent *model.Agent) bool {
	return agent.HasSigningKey()
}

// ShouldVerify reports whether memories of agent are expected to carry a
// valid signature when injected.
func ShouldVerify(agent *model.Agent) bool {
	return agent.HasSigningKey()
}

// Check returns the verification outcome for m owned by agent. Agents
// without a key are never checked. Agents with a key expect every memory to
// carry a valid signature.
func Check(m *model.Memory, agent *model.Agent) model.Verification {
	if !ShouldVerify(agent) {
		return model.Unchecked
	}
	if Verify(m, m.Signature, agent.SigningKey) {
		return model.Verified
	}
	return model.Failed
}

// GenerateKey returns a random hex key of n bytes.
func GenerateKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
