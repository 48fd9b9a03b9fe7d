// Package server provides HTTP routing, middleware, and OAuth callback handling for account linking.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] added first runs outermost.
// [LoggingMiddleware] and [RecoverMiddleware] are applied to the callback server.
//
// The [BasicRouter] implementation registers [http.ServeMux] method patterns such as "GET /callback".
//
// # OAuth Callback Handler
//
// OAuthHandler implements the OAuth2 authorization code callback flow for any [Exchanger].
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Usage
//
// When the user runs `sonik accounts link`, [WaitForCallback] starts a temporary HTTP server on the configured
// address, handles the callback, and shuts down after receiving the token.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
