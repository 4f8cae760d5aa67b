package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		provider, err := NewProvider(ProviderConfig{Type: MemoryProviderType})
		require.NoError(t, err)
		assert.IsType(t, &MemoryProvider{}, provider)
	})

	t.Run("DynamoDBWithoutConfig", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Type: DynamoDBProviderType})
		assert.Error(t, err)
	})

	t.Run("PostgreSQLWithoutConfig", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Type: PostgreSQLProviderType})
		assert.Error(t, err)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Type: ProviderType("etcd")})
		assert.Error(t, err)
	})
}

func TestParseProviderType(t *testing.T) {
	cases := []struct {
		input string
		want  ProviderType
		ok    bool
	}{
		{"", MemoryProviderType, true},
		{"memory", MemoryProviderType, true},
		{"dynamodb", DynamoDBProviderType, true},
		{"postgres", PostgreSQLProviderType, true},
		{"postgresql", PostgreSQLProviderType, true},
		{"etcd", "", false},
	}

	for _, tc := range cases {
		got, err := ParseProviderType(tc.input)
		if !tc.ok {
			assert.Error(t, err, "input %q", tc.input)
			continue
		}
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.want, got)
	}
}
