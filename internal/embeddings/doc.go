// Package embeddings selects and runs the text embedding backend.
//
// Two backends are supported: a hosted OpenAI model reached through
// langchaingo, and a self-hosted ONNX model run in-process by fastembed-go.
// Select resolves the backend, model, and output dimensionality, taking the
// vector store's existing collection size into account; a Registry then
// initializes the chosen model once per process.
package embeddings
