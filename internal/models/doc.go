// Package models defines domain entities and persistence interfaces for SonikSwap.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing provider data
//   - [Playlist] : Basic playlist metadata from music providers
//   - [PlaylistExport] : Playlist with complete track listing
//   - [Track] : Song metadata with ISRC for cross-provider matching, identified by [Track.Key]
//
// 2. Persistent Entities: Database-backed models
//   - [Account] : A linked Spotify or Deezer account with its OAuth tokens
//   - [Transfer] : One transfer run and its outcome
//
// All persistent entities implement the [Model] interface providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
