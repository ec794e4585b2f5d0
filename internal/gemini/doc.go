// Package gemini calls the hosted multimodal model for image analysis, text
// to image generation and virtual outfit changes.
//
// Two image model tiers are exposed as VariantV1 and VariantV2; requested
// aspect ratios are mapped onto the set the models accept. Inputs may be data
// URLs or raw base64.
package gemini
