package domain

import "github.com/google/uuid"

// Credential holds an encrypted secret used by node executors.
// The engine holds only id references; decryption happens lazily, on
// executor request, and the decrypted value is never logged.
type Credential struct {
	id         uuid.UUID
	credType   CredentialType
	name       string
	secretData []byte // encrypted at rest; see internal/storage/sqlstore for the cipher
}

func NewCredential(id uuid.UUID, credType CredentialType, name string, encryptedSecret []byte) (*Credential, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if name == "" {
		return nil, NewDomainError(ErrCodeInvalidInput, "credential name must not be blank", nil)
	}
	return &Credential{id: id, credType: credType, name: name, secretData: encryptedSecret}, nil
}

func (c *Credential) ID() uuid.UUID { return c.id }
func (c *Credential) Type() CredentialType { return c.credType }
func (c *Credential) Name() string { return c.name }
func (c *Credential) EncryptedSecret() []byte { return c.secretData }
