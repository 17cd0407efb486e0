package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
)

func TestValidateVideoID(t *testing.T) {
	v := NewValidator(nil)

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "dQw4w9WgXcQ", false},
		{"valid with underscore and dash", "a_b-c_d-e_f", false},
		{"empty", "", true},
		{"too short", "abc", true},
		{"too long", "dQw4w9WgXcQQ", true},
		{"illegal characters", "dQw4w9WgXc!", true},
		{"path traversal", "../etc/pass", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateVideoID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsKind(err, errors.KindInvalidVideoID))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLang(t *testing.T) {
	v := NewValidator(nil)

	for _, valid := range []string{"", "en", "zh-CN", "pt-BR", "zh-Hans", "yue"} {
		assert.NoError(t, v.ValidateLang(valid), valid)
	}

	for _, invalid := range []string{"e", "english-language", "en_US", "12", "zh CN"} {
		err := v.ValidateLang(invalid)
		assert.Error(t, err, invalid)
		assert.True(t, errors.IsKind(err, errors.KindInvalidLanguage))
	}
}

func TestNormalizeFormat(t *testing.T) {
	v := NewValidator(nil)

	assert.Equal(t, subtitle.FormatVTT, v.NormalizeFormat("vtt"))
	assert.Equal(t, subtitle.FormatSRV3, v.NormalizeFormat("srv3"))
	assert.Equal(t, subtitle.FormatJSON3, v.NormalizeFormat(""))
	assert.Equal(t, subtitle.FormatJSON3, v.NormalizeFormat("srt"))
}
