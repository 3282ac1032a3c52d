package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gamifyd/core"
)

func TestValidatePage_Defaults(t *testing.T) {
	p, err := ValidatePage("user", Page{})
	require.NoError(t, err)
	require.Equal(t, DefaultPage(), p)
}

func TestValidatePage_RejectsUnknownSortField(t *testing.T) {
	_, err := ValidatePage("user", Page{Sort: "apiKey"})
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = ValidatePage("user", Page{Sort: "password; DROP TABLE users"})
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestValidatePage_RejectsUnknownEntity(t *testing.T) {
	_, err := ValidatePage("session", Page{})
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestValidatePage_PerEntityWhitelists(t *testing.T) {
	cases := []struct {
		entity string
		sort   string
		ok     bool
	}{
		{"user", "xp", true},
		{"user", "quantity", false},
		{"reward", "quantity", true},
		{"reward", "xp", false},
		{"history", "value", true},
		{"history", "name", false},
		{"objective", "targetValue", true},
	}
	for _, tc := range cases {
		_, err := ValidatePage(tc.entity, Page{Sort: tc.sort})
		if tc.ok {
			require.NoError(t, err, "%s/%s", tc.entity, tc.sort)
		} else {
			require.ErrorIs(t, err, core.ErrInvalidArgument, "%s/%s", tc.entity, tc.sort)
		}
	}
}

func TestNewPageInfo(t *testing.T) {
	info := NewPageInfo(Page{Page: 2, Limit: 10}, 35)
	require.Equal(t, 35, info.TotalDocs)
	require.Equal(t, 4, info.TotalPages)
	require.True(t, info.HasNextPage)
	require.True(t, info.HasPrevPage)
	require.Equal(t, 3, *info.NextPage)
	require.Equal(t, 1, *info.PrevPage)

	info = NewPageInfo(Page{Page: 1, Limit: 10}, 5)
	require.Equal(t, 1, info.TotalPages)
	require.False(t, info.HasNextPage)
	require.False(t, info.HasPrevPage)
	require.Nil(t, info.NextPage)
	require.Nil(t, info.PrevPage)
}

func TestPageOffset(t *testing.T) {
	require.Equal(t, 0, Page{Page: 1, Limit: 20}.Offset())
	require.Equal(t, 40, Page{Page: 3, Limit: 20}.Offset())
}
