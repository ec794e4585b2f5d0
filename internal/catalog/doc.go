// Package catalog persists the studio's administrative state: imported
// workflows, menu pages with their input mappings, backend servers, site
// settings, users and the guestbook.
//
// The store is backed by SQLite with embedded migrations; the second
// migration seeds the default menu, a placeholder backend and the site
// branding. Writes publish an Event after commit so the daemon can push
// change notifications to connected studio clients.
package catalog
