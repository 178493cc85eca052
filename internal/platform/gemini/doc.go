// Package gemini provides a producer.Producer that generates media assets
// with Google's generative media models through the genai client library.
//
// Images are produced with Imagen via Models.GenerateImages. Videos and
// animations are produced with Veo via Models.GenerateVideos; that call
// returns a long-running operation which is polled with
// Operations.GetVideosOperation until it finishes or the context expires.
//
// Hosted URIs returned by the service are used directly as the job's output
// URL. When the service returns inline bytes instead, the bytes are written
// to a storage.FileStore and the store's public URL is used.
//
// Transient failures when starting a generation are retried with exponential
// backoff and jitter. Content filtered by safety policies is reported as a
// permanent failure.
package gemini
