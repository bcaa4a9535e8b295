package out

import (
	"encoding/json"
	"fmt"
	"strings"

	"punchclock/internal/modules/attendance/domain"
	apperrors "punchclock/internal/platform/errors"
)

func encodeSnapshot(snapshot domain.CachedSnapshot) ([]byte, error) {
	if snapshot.SchemaVersion == 0 {
		snapshot.SchemaVersion = domain.SchemaVersion
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal session snapshot: %w", err)
	}
	return payload, nil
}

// decodeSnapshot treats snapshots of another schema as absent.
func decodeSnapshot(payload []byte) (domain.CachedSnapshot, error) {
	snapshot := domain.CachedSnapshot{}
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.CachedSnapshot{}, fmt.Errorf("decode session snapshot: %w", err)
	}
	if snapshot.SchemaVersion != domain.SchemaVersion {
		return domain.CachedSnapshot{}, fmt.Errorf("%w: snapshot schema %d", apperrors.ErrNotFound, snapshot.SchemaVersion)
	}
	return snapshot, nil
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: invalid cache key %q", apperrors.ErrInvalidInput, key)
	}
	return nil
}
