// Package llm is the client side of the model execution service: the opaque
// external collaborator that turns prompts and media requests into generated
// content. The execution core talks to it only through the Service interface;
// provider selection, credentials, and transport details stay behind it.
package llm
