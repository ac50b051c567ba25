package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

func parseFilter(t *testing.T, args ...string) (entities.FactFilter, error) {
	t.Helper()
	var f filterFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd, 25)
	require.NoError(t, cmd.Flags().Parse(args))
	return f.filter(cmd)
}

func TestFilterFlags(t *testing.T) {
	intp := func(v int) *int { return &v }

	tests := []struct {
		name    string
		args    []string
		want    entities.FactFilter
		wantErr string
	}{
		{
			name: "defaults",
			want: entities.FactFilter{Limit: 25},
		},
		{
			name: "types predicates and status",
			args: []string{"--type", "World,inter-character", "-p", "trusts", "--status", "any"},
			want: entities.FactFilter{
				Types:      []entities.FactType{entities.FactTypeWorld, entities.FactTypeInterCharacter},
				Predicates: []string{"trusts"},
				Status:     entities.StatusAny,
				Limit:      25,
			},
		},
		{
			name: "chapter",
			args: []string{"--chapter", "3", "--limit", "5", "--offset", "10"},
			want: entities.FactFilter{Chapter: intp(3), Limit: 5, Offset: 10},
		},
		{
			name: "range",
			args: []string{"--range", "2-6"},
			want: entities.FactFilter{Range: &entities.ChapterRange{Min: 2, Max: 6}, Limit: 25},
		},
		{
			name: "valid at",
			args: []string{"--valid-at", "4"},
			want: entities.FactFilter{ValidAt: intp(4), Limit: 25},
		},
		{
			name:    "two time filters",
			args:    []string{"--chapter", "3", "--valid-at", "4"},
			wantErr: "only one of",
		},
		{
			name:    "chapter zero",
			args:    []string{"--chapter", "0"},
			wantErr: "--chapter must be >= 1",
		},
		{
			name:    "unknown type",
			args:    []string{"--type", "location"},
			wantErr: "invalid type",
		},
		{
			name:    "unknown status",
			args:    []string{"--status", "deleted"},
			wantErr: "invalid status",
		},
		{
			name:    "negative limit",
			args:    []string{"--limit", "-1"},
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilter(t, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("3-7")
	require.NoError(t, err)
	assert.Equal(t, &entities.ChapterRange{Min: 3, Max: 7}, r)

	r, err = parseRange(" 4 ")
	require.NoError(t, err)
	assert.Equal(t, &entities.ChapterRange{Min: 4, Max: 4}, r)

	for _, bad := range []string{"", "x-3", "3-x", "7-3", "0-2"} {
		_, err := parseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestRetrieveFlags_Context(t *testing.T) {
	var flags retrieveFlags
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)

	require.NoError(t, cmd.Flags().Parse([]string{
		"-e", "Mara", "-e", "Tobin", "-w", "--prefer", "world", "--valid-at", "3", "--reference-chapter", "5",
	}))

	rc, err := flags.context(cmd, []string{"who is at the docks"})
	require.NoError(t, err)
	assert.Equal(t, "who is at the docks", rc.Query)
	assert.Equal(t, []string{"Mara", "Tobin"}, rc.EntityNames)
	assert.True(t, rc.IncludeWorld)
	assert.Equal(t, []entities.FactType{entities.FactTypeWorld}, rc.PreferredTypes)
	require.NotNil(t, rc.ValidAt)
	assert.Equal(t, 3, *rc.ValidAt)
	require.NotNil(t, rc.ReferenceChapter)
	assert.Equal(t, 5, *rc.ReferenceChapter)
	assert.Equal(t, -1.0, rc.Threshold, "left for the config default")
	assert.Zero(t, rc.Limit)

	require.NoError(t, cmd.Flags().Parse([]string{"--offset", "5"}))
	_, err = flags.context(cmd, nil)
	require.Error(t, err)
}
