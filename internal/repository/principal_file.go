package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go-file-tree/internal/model"
)

// FilePrincipalStore serves principals from a JSON array on disk, loaded
// once at startup. It is used when no database is configured.
type FilePrincipalStore struct {
	principals map[string]model.Principal
}

func LoadFilePrincipalStore(path string) (*FilePrincipalStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read principals file: %w", err)
	}

	var list []model.Principal
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode principals file: %w", err)
	}

	return NewFilePrincipalStore(list)
}

func NewFilePrincipalStore(list []model.Principal) (*FilePrincipalStore, error) {
	principals := make(map[string]model.Principal, len(list))
	for _, p := range list {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("principal with empty id")
		}
		if _, dup := principals[id]; dup {
			return nil, fmt.Errorf("duplicate principal %q", id)
		}
		p.ID = id
		principals[id] = p
	}

	return &FilePrincipalStore{principals: principals}, nil
}

func (s *FilePrincipalStore) FindByID(_ context.Context, id string) (model.Principal, error) {
	p, ok := s.principals[id]
	if !ok {
		return model.Principal{}, model.ErrPrincipalNotFound
	}
	return p, nil
}
