// Package docodb provides an object database backend for a content-addressed
// version-control object store, persisting objects in a remote
// document-indexed store.
//
// Objects (blobs, trees, commits, tags) are immutable and keyed by their
// content hash. The backend translates object database operations into
// document store calls:
//
//	exact lookup     -> get by id
//	prefix lookup    -> prefix-filtered search, at most 2 hits
//	enumeration      -> paged id-only search over every document
//	write            -> index one document
//
// Any DocumentStore can back the database. The docodb command ships drivers
// for Elasticsearch, Redis and MongoDB.
//
//	odb, _ := docodb.New(store, docodb.WithCache(true))
//
//	id, _ := docodb.ComputeID(docodb.KindBlob, data)
//	if !odb.Exists(ctx, id) {
//	    odb.Write(ctx, &docodb.Object{ID: id, Kind: docodb.KindBlob, Length: int64(len(data)), Payload: data})
//	}
//
//	obj, err := odb.ReadByPrefix(ctx, id.Short(7))
//	switch {
//	case errors.Is(err, docodb.ErrNotFound):
//	case errors.Is(err, docodb.ErrAmbiguous):
//	}
//
// Chunked writes:
//
//	w, _ := odb.OpenWriteStream(docodb.KindBlob, size)
//	w.Append(r, 4096)
//	...
//	w.Finalize(ctx, id)
//
// Enumeration:
//
//	odb.ForEach(ctx, func(id docodb.ID) error {
//	    fmt.Println(id)
//	    return nil // or docodb.ErrStop
//	})
//
// Operation outcomes map onto the host's return codes through StatusOf.
package docodb
