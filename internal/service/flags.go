package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"house_screens/internal/models"
	"house_screens/internal/repository"
)

// maxSwapRetries bounds compare-and-swap loops against a contended key.
const maxSwapRetries = 8

var errSwapContention = errors.New("flag store: too many concurrent updates")

// FlagStore gives typed access to the persisted RefreshState flags.
type FlagStore struct {
	store repository.StateStore
}

func NewFlagStore(store repository.StateStore) *FlagStore {
	return &FlagStore{store: store}
}

// Load reads every flag into a RefreshState. Missing keys read as zero values.
func (f *FlagStore) Load(ctx context.Context) (models.RefreshState, error) {
	var st models.RefreshState
	var err error

	bools := []struct {
		key string
		dst *bool
	}{
		{models.KeyNeedsRefresh, &st.NeedsRefresh},
		{models.KeyNeedsSecondRefresh, &st.NeedsSecondRefresh},
		{models.KeyRefreshShown, &st.RefreshShown},
		{models.KeyActivationComplete, &st.ActivationComplete},
		{models.KeyAccountJustCreated, &st.AccountJustCreated},
		{models.KeyEnvironmentCreationNeeded, &st.EnvironmentCreationNeeded},
		{models.KeyScreenSetupFailed, &st.ScreenSetupFailed},
	}
	for _, b := range bools {
		if *b.dst, err = f.Bool(ctx, b.key); err != nil {
			return models.RefreshState{}, err
		}
	}
	if st.RefreshAttempts, err = f.Attempts(ctx); err != nil {
		return models.RefreshState{}, err
	}
	if st.NewAccountHouseID, err = f.String(ctx, models.KeyNewAccountHouseID); err != nil {
		return models.RefreshState{}, err
	}
	if st.LastSyncError, err = f.String(ctx, models.KeyLastSyncError); err != nil {
		return models.RefreshState{}, err
	}
	if st.CopiedHouses, err = f.CopiedHouses(ctx); err != nil {
		return models.RefreshState{}, err
	}
	return st, nil
}

// Bool reads a "true"/"false" flag; anything else reads as false.
func (f *FlagStore) Bool(ctx context.Context, key string) (bool, error) {
	v, ok, err := f.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return ok && v == "true", nil
}

func (f *FlagStore) SetBool(ctx context.Context, key string, v bool) error {
	if err := f.store.Set(ctx, key, strconv.FormatBool(v)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (f *FlagStore) String(ctx context.Context, key string) (string, error) {
	v, _, err := f.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

func (f *FlagStore) SetString(ctx context.Context, key, v string) error {
	if err := f.store.Set(ctx, key, v); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (f *FlagStore) Delete(ctx context.Context, key string) error {
	if err := f.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Attempts reads refreshAttempts. A corrupt value reads as zero.
func (f *FlagStore) Attempts(ctx context.Context) (int, error) {
	v, ok, err := f.store.Get(ctx, models.KeyRefreshAttempts)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", models.KeyRefreshAttempts, err)
	}
	if !ok {
		return 0, nil
	}
	n, convErr := strconv.Atoi(v)
	if convErr != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

func (f *FlagStore) ResetAttempts(ctx context.Context) error {
	return f.SetString(ctx, models.KeyRefreshAttempts, "0")
}

// IncrementAttempts bumps refreshAttempts atomically and returns the new value.
func (f *FlagStore) IncrementAttempts(ctx context.Context) (int, error) {
	for i := 0; i < maxSwapRetries; i++ {
		prev, _, err := f.store.Get(ctx, models.KeyRefreshAttempts)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", models.KeyRefreshAttempts, err)
		}
		n, convErr := strconv.Atoi(prev)
		if convErr != nil || n < 0 {
			n = 0
		}
		next := strconv.Itoa(n + 1)
		ok, err := f.store.CompareAndSwap(ctx, models.KeyRefreshAttempts, prev, next)
		if err != nil {
			return 0, fmt.Errorf("swap %s: %w", models.KeyRefreshAttempts, err)
		}
		if ok {
			return n + 1, nil
		}
	}
	return 0, errSwapContention
}

// CopiedHouses returns the sorted set of houses that already received
// default content. A corrupt value reads as empty.
func (f *FlagStore) CopiedHouses(ctx context.Context) ([]string, error) {
	v, ok, err := f.store.Get(ctx, models.KeyCopiedHouses)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", models.KeyCopiedHouses, err)
	}
	if !ok || v == "" {
		return nil, nil
	}
	return decodeHouseSet(v), nil
}

// AddCopiedHouse records houseID in copiedHouses. The set only ever grows.
func (f *FlagStore) AddCopiedHouse(ctx context.Context, houseID string) error {
	for i := 0; i < maxSwapRetries; i++ {
		prev, _, err := f.store.Get(ctx, models.KeyCopiedHouses)
		if err != nil {
			return fmt.Errorf("read %s: %w", models.KeyCopiedHouses, err)
		}
		set := decodeHouseSet(prev)
		for _, id := range set {
			if id == houseID {
				return nil
			}
		}
		set = append(set, houseID)
		sort.Strings(set)
		b, err := json.Marshal(set)
		if err != nil {
			return fmt.Errorf("encode %s: %w", models.KeyCopiedHouses, err)
		}
		ok, err := f.store.CompareAndSwap(ctx, models.KeyCopiedHouses, prev, string(b))
		if err != nil {
			return fmt.Errorf("swap %s: %w", models.KeyCopiedHouses, err)
		}
		if ok {
			return nil
		}
	}
	return errSwapContention
}

// MarkAccountCreated flags houseID as freshly created so the next run copies
// default content into it. Houses that already received content are ignored.
func (f *FlagStore) MarkAccountCreated(ctx context.Context, houseID string) (bool, error) {
	copied, err := f.CopiedHouses(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range copied {
		if id == houseID {
			return false, nil
		}
	}
	if err := f.SetString(ctx, models.KeyNewAccountHouseID, houseID); err != nil {
		return false, err
	}
	if err := f.SetBool(ctx, models.KeyAccountJustCreated, true); err != nil {
		return false, err
	}
	return true, nil
}

func decodeHouseSet(v string) []string {
	if v == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(v), &ids); err != nil {
		return nil
	}
	return ids
}
