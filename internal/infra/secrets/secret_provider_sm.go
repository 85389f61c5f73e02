package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrSecretNotConfigured = errors.New("secret_provider: not configured")
	ErrSecretNotFound      = errors.New("secret_provider: secret not found")
)

// SecretProviderSM reads the latest version of a Secret Manager secret.
type SecretProviderSM struct {
	ProjectID string

	client *secretmanager.Client
	access func(ctx context.Context, name string) ([]byte, error)
}

func NewSecretProviderSM(ctx context.Context, projectID string) (*SecretProviderSM, error) {
	pid := strings.TrimSpace(projectID)
	if pid == "" {
		return nil, fmt.Errorf("%w: projectID is empty", ErrSecretNotConfigured)
	}

	c, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	p := &SecretProviderSM{ProjectID: pid, client: c}
	p.access = func(ctx context.Context, name string) ([]byte, error) {
		res, err := c.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return nil, err
		}
		if res == nil || res.Payload == nil {
			return nil, nil
		}
		return res.Payload.Data, nil
	}
	return p, nil
}

// Get returns the trimmed payload of secretID ("latest" version).
// A full resource name ("projects/.../versions/N") is used as-is.
func (p *SecretProviderSM) Get(ctx context.Context, secretID string) (string, error) {
	if p == nil || p.access == nil {
		return "", ErrSecretNotConfigured
	}
	id := strings.TrimSpace(secretID)
	if id == "" {
		return "", fmt.Errorf("%w: secret id is empty", ErrSecretNotConfigured)
	}

	name := id
	if !strings.HasPrefix(id, "projects/") {
		name = fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.ProjectID, id)
	}

	data, err := p.access(ctx, name)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, id)
		}
		return "", fmt.Errorf("secret_provider: access %s: %w", id, err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrSecretNotFound, id)
	}
	return s, nil
}

func (p *SecretProviderSM) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
