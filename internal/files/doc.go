// Package files provides the small file system primitives shared by the
// record store, the registry cache and the local activation file.
//
// This package contains two main components:
//
// Atomic writes: WriteAtomic replaces a file through a temporary file in the
// same directory followed by a rename, so readers observe either the old or
// the new content and never a partial write. Remove treats an absent file as
// success.
//
// Discovery: lists files in a directory by extension, sorted by name, for
// scans that must tolerate unreadable entries.
//
// Example usage:
//
//	if err := files.WriteAtomic("/data/keys.json", doc, 0644); err != nil {
//	    return err
//	}
//
//	records, err := files.NewDiscovery(keysDir).FindByExtension(".json")
package files
