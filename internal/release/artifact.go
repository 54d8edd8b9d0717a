package release

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// ArtifactRef is an immutable content-addressed container image reference of
// the form repository@sha256:<64 hex>. Mutable tag references are rejected so
// there is never ambiguity about what was actually deployed.
type ArtifactRef struct {
	// Repository is the image repository (registry/path).
	Repository string
	// Digest is the content digest including the sha256: prefix.
	Digest string
}

// ParseArtifactRef parses and validates a digest-pinned image reference.
func ParseArtifactRef(ref string) (ArtifactRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ArtifactRef{}, fmt.Errorf("artifact ref is empty: %w", ErrValidation)
	}

	at := strings.LastIndex(ref, "@")
	if at <= 0 || at == len(ref)-1 {
		return ArtifactRef{}, fmt.Errorf("artifact ref %q must be digest-pinned (repo@sha256:...): %w", ref, ErrValidation)
	}

	repo := strings.TrimSpace(ref[:at])
	digest := strings.ToLower(strings.TrimSpace(ref[at+1:]))
	if repo == "" {
		return ArtifactRef{}, fmt.Errorf("artifact ref %q has an empty repository: %w", ref, ErrValidation)
	}
	if !isSHA256Digest(digest) {
		return ArtifactRef{}, fmt.Errorf("artifact ref %q has an invalid digest %q: %w", ref, digest, ErrValidation)
	}

	return ArtifactRef{Repository: repo, Digest: digest}, nil
}

// String returns the canonical repo@digest form.
func (r ArtifactRef) String() string {
	if r.Repository == "" && r.Digest == "" {
		return ""
	}
	return r.Repository + "@" + r.Digest
}

// IsZero reports whether the ref is unset.
func (r ArtifactRef) IsZero() bool {
	return r.Repository == "" && r.Digest == ""
}

// MarshalJSON encodes the ref as its canonical string form.
func (r ArtifactRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes and validates the canonical string form.
func (r *ArtifactRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = ArtifactRef{}
		return nil
	}
	parsed, err := ParseArtifactRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func isSHA256Digest(value string) bool {
	if !strings.HasPrefix(value, "sha256:") {
		return false
	}
	hexPart := strings.TrimPrefix(value, "sha256:")
	if len(hexPart) != 64 {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}
