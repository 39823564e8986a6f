// Package fs abstracts the file operations blob stores use to write data,
// so tests can inject failures.
//
//   - [LocalFS]: the os package
//   - [FaultyFS]: wraps another FileSystem and fails writes, syncs, closes
//     or renames of matching files
//
// Tests inject a [FaultyFS]:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp-", fs.Fault{FailAfterBytes: 1024})
//	store := blobstore.NewLocalStoreFS(dir, ffs)
//
// The interfaces take no context.Context. Local file operations are not
// interruptible at the syscall level.
package fs
