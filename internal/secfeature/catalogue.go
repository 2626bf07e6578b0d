// Package secfeature applies and re-derives the document's tamper-evidence
// markers. Application is additive and ordered; verification is a pure
// function of the final document bytes plus the issuer key, so an externally
// supplied document can be checked without trusting any application-time flag.
package secfeature

// Feature names one tamper-evidence marker.
type Feature string

const (
	FeatureHologram       Feature = "hologram"
	FeatureMicroprint     Feature = "microprint"
	FeatureUVMarker       Feature = "uv_marker"
	FeatureChipPayload    Feature = "chip_payload"
	FeatureSecurityThread Feature = "security_thread"
	FeatureOpticalMarker  Feature = "optical_variable_marker"
	FeatureGhostImage     Feature = "ghost_image"
	FeatureGuilloche      Feature = "guilloche_pattern"
	FeatureWatermark      Feature = "watermark"
	FeatureEmbossing      Feature = "embossing"
)

// Catalogue returns the full ordered marker set. Order matters: each marker's
// payload chains over its predecessor, so reordering is itself tamper-evident.
func Catalogue() []Feature {
	return []Feature{
		FeatureHologram,
		FeatureMicroprint,
		FeatureUVMarker,
		FeatureChipPayload,
		FeatureSecurityThread,
		FeatureOpticalMarker,
		FeatureGhostImage,
		FeatureGuilloche,
		FeatureWatermark,
		FeatureEmbossing,
	}
}
