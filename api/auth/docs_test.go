package auth_test

import (
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/shopauth/api/auth"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestSwaggerDoc(t *testing.T) {
	doc, err := swag.ReadDoc(auth.SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var parsed struct {
		Swagger string                    `json:"swagger"`
		Info    struct{ Title string }    `json:"info"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	require.Equal(t, "2.0", parsed.Swagger)
	require.Equal(t, auth.SwaggerInfo.Title, parsed.Info.Title)

	for _, p := range []string{
		"/v1/api/shop/signup", "/v1/api/shop/login", "/v1/api/shop/signin",
		"/v1/api/shop/refresh", "/v1/api/shop/handlerRefreshToken", "/v1/api/shop/logout",
	} {
		require.Contains(t, parsed.Paths, p)
		require.Contains(t, parsed.Paths[p], "post")
	}
}
