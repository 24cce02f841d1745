// Package tokensource performs the login and token refresh calls of the
// service desk API.
//
// The API's token endpoints deviate from standard OAuth2 in a few ways that
// require custom handling:
//   - Requests are JSON-encoded (standard OAuth2 uses form-encoding)
//   - No grant_type is sent; the endpoint alone determines the grant
//   - Login and refresh live on separate endpoints
//
// # Exchanger
//
//	ex, err := tokensource.NewExchanger(tokensource.Endpoint{
//		LoginURL:   "http://localhost:8000/api/v1/auth/login",
//		RefreshURL: "http://localhost:8000/api/v1/auth/refresh",
//	})
//	tok, err := ex.Login(ctx, "alice", "secret")
//	tok, err = ex.Refresh(ctx, tok.RefreshToken)
//
// Non-2xx responses surface as *oauth2.RetrieveError, which carries the response.
//
// # Custom Base Transport
//
// Configure a custom base transport for token requests (e.g., for proxies or custom timeouts):
//
//	ex, err := tokensource.NewExchanger(endpoint, tokensource.WithTransport(customTransport))
package tokensource
