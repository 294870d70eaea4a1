// Package fetch is the fetcher capability: it downloads a source URL to a
// local path, honoring the refresh policy of the remote_file resource.
//
// Under always-revalidate the download is conditional. The request carries
// If-None-Match with the ETag remembered from the previous download and
// If-Modified-Since with the local file's mtime; a 304 answer is Unchanged.
//
// A download is written to a temporary sibling of the destination and
// renamed over it only after the whole body was read. Any failure leaves the
// previous local file exactly as it was.
package fetch
