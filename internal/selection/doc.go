// Package selection tracks which items of a listing are selected and derives the views its consumers read.
//
// A [Store] holds two base values: the backing item collection and a [Set] mapping item keys to a selected flag.
// Two derived values are kept alongside them and recomputed inside every mutating call:
//   - [Store.SelectedItems] : the items whose key is selected, in collection order
//   - [Store.SelectedCount] : the number of selected keys present in the collection
//
// Observers registered with [Store.Subscribe] run synchronously after the derived values are updated,
// so a reader never sees a selection that disagrees with its count.
//
// # Collection changes
//
// [Store.Initialize] keeps the current selection when the new collection has the same set of keys
// (a re-fetch of the same playlist) and clears it otherwise.
// Keys that are selected but no longer in the collection are never counted or returned.
//
// A Store has a single writer (the view it backs) and is not safe for concurrent use.
package selection
