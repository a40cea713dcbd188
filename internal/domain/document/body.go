package document

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Sealer encrypts stored document bodies. aad binds a body to its row.
type Sealer interface {
	Seal(plaintext, aad []byte) (string, error)
	Open(sealed string, aad []byte) ([]byte, error)
}

// RepoOption configures the SQL repositories.
type RepoOption func(*repoConfig)

type repoConfig struct {
	sealer Sealer
}

// WithSealer encrypts document bodies at rest. Rows written without a
// sealer stay readable.
func WithSealer(s Sealer) RepoOption {
	return func(c *repoConfig) { c.sealer = s }
}

func newRepoConfig(opts []RepoOption) repoConfig {
	var c repoConfig
	for _, o := range opts {
		o(&c)
	}
	return c
}

// sealedBody is the stored form of an encrypted document. It is itself JSON
// so the body column keeps its type.
type sealedBody struct {
	Sealed string `json:"sealed"`
}

func (c repoConfig) encodeBody(doc *MedicalDocument) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if c.sealer == nil {
		return body, nil
	}
	sealed, err := c.sealer.Seal(body, doc.ID[:])
	if err != nil {
		return nil, fmt.Errorf("seal document %s: %w", doc.ID, err)
	}
	return json.Marshal(sealedBody{Sealed: sealed})
}

func (c repoConfig) decodeBody(id uuid.UUID, body []byte) (*MedicalDocument, error) {
	var env sealedBody
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	if env.Sealed != "" {
		if c.sealer == nil {
			return nil, fmt.Errorf("document %s is sealed and no key is configured", id)
		}
		plain, err := c.sealer.Open(env.Sealed, id[:])
		if err != nil {
			return nil, fmt.Errorf("open document %s: %w", id, err)
		}
		body = plain
	}
	var doc MedicalDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}
