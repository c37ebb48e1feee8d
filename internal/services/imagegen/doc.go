// Package imagegen implements the gateway.Image contract.
//
// LocalClient drives a Stable Diffusion WebUI txt2img endpoint and decodes
// the base64 images it returns. CloudClient fetches images from a
// Pollinations-style GET endpoint. AssetsClient picks pictures from a local
// image library by matching file names against the prompt. Every payload is
// checked with media/imageinfo before it is stored, so a truncated or HTML
// error body is rejected as a validation failure instead of reaching ffmpeg.
package imagegen
