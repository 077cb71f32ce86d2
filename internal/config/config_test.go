package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("SNAP_MODEL_BUCKET", "")
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "cookie.fun", cfg.DefaultPlatform)
	assert.Equal(t, 20, cfg.MinAnalysisLength)
	assert.Equal(t, 24*time.Hour, cfg.ScoreCacheTTL)
	assert.False(t, cfg.UseS3())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SNAP_LLM_TIMEOUT_S", "5")
	t.Setenv("SNAP_TRAINING_WORKERS", "0")
	t.Setenv("SNAP_DEFAULT_PLATFORM", "Kaito")
	t.Setenv("SNAP_MODEL_BUCKET", "models-bucket")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 1, cfg.TrainingWorkers)
	assert.Equal(t, "kaito", cfg.DefaultPlatform)
	assert.True(t, cfg.UseS3())
}

func TestFromEnvRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("SNAP_SCORE_CACHE_SIZE", "lots")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse SNAP_SCORE_CACHE_SIZE")
}

func TestFromEnvValidates(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"zero cache":        {env: map[string]string{"SNAP_SCORE_CACHE_SIZE": "0"}, want: "SNAP_SCORE_CACHE_SIZE"},
		"negative timeout":  {env: map[string]string{"SNAP_LLM_TIMEOUT_S": "-1"}, want: "SNAP_LLM_TIMEOUT_S"},
		"hot temperature":   {env: map[string]string{"SNAP_LLM_TEMPERATURE": "3.5"}, want: "SNAP_LLM_TEMPERATURE"},
		"negative min text": {env: map[string]string{"SNAP_MIN_ANALYSIS_LENGTH": "-4"}, want: "SNAP_MIN_ANALYSIS_LENGTH"},
		"half s3 keys":      {env: map[string]string{"SNAP_MODEL_BUCKET": "b", "SNAP_S3_ACCESS_KEY": "ak"}, want: "SNAP_S3_SECRET_KEY"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Setenv("SNAP_MODEL_BUCKET", "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.ModelDir = ""
	assert.ErrorContains(t, cfg.Validate(), "SNAP_MODEL_DIR")
}
