// Package services defines the [Service] interface for music streaming providers and implements it for Spotify and Deezer.
//
// # Service Interface
//
// All music providers implement a common abstraction, enabling playlist listing, export, search and import to work
// uniformly across providers.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token refresh.
//
// The [oauth2.Client] automatically refreshes expired tokens using the refresh token.
//
// # Deezer Implementation
//
// [DeezerService] talks to the public Deezer API. Its OAuth flow returns long-lived tokens without refresh,
// and requests carry the token as an access_token query parameter.
// Deezer reports most failures inside a 200 response as {"error": {...}} which are mapped to typed errors.
//
// # OAuth Service Extension
//
// The [OAuthService] interface extends Service for OAuth providers. Both services implement it.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : OAuth token expired, reauthorization needed
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrRateLimited] : provider quota exceeded
//   - [shared.ErrPlaylistNotFound] : Playlist ID not found
//   - [shared.ErrTrackNotFound] : search produced no acceptable match
//
// # Matching
//
// [BestMatch] ranks search candidates. An ISRC match wins outright; otherwise candidates are scored by
// normalized title and artist similarity.
package services
