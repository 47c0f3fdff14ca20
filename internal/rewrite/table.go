package rewrite

import "github.com/localtex/cli/internal/interfaces"

type channelKey struct {
	category interfaces.WearableCategory
	region   interfaces.BodyRegion
}

// channels maps a wearable category and the baked region its layer composes
// into onto the avatar texture channel that layer feeds
var channels = map[channelKey]interfaces.TextureChannel{
	{interfaces.WearableAlpha, interfaces.RegionEyes}:  interfaces.ChannelEyesAlpha,
	{interfaces.WearableAlpha, interfaces.RegionHair}:  interfaces.ChannelHairAlpha,
	{interfaces.WearableAlpha, interfaces.RegionHead}:  interfaces.ChannelHeadAlpha,
	{interfaces.WearableAlpha, interfaces.RegionLower}: interfaces.ChannelLowerAlpha,
	{interfaces.WearableAlpha, interfaces.RegionUpper}: interfaces.ChannelUpperAlpha,

	{interfaces.WearableEyes, interfaces.RegionEyes}:    interfaces.ChannelEyesIris,
	{interfaces.WearableGloves, interfaces.RegionUpper}: interfaces.ChannelUpperGloves,

	{interfaces.WearableJacket, interfaces.RegionLower}: interfaces.ChannelLowerJacket,
	{interfaces.WearableJacket, interfaces.RegionUpper}: interfaces.ChannelUpperJacket,

	{interfaces.WearablePants, interfaces.RegionLower}: interfaces.ChannelLowerPants,
	{interfaces.WearableShirt, interfaces.RegionUpper}: interfaces.ChannelUpperShirt,
	{interfaces.WearableShoes, interfaces.RegionLower}: interfaces.ChannelLowerShoes,

	{interfaces.WearableSkin, interfaces.RegionHead}:  interfaces.ChannelHeadBodypaint,
	{interfaces.WearableSkin, interfaces.RegionLower}: interfaces.ChannelLowerBodypaint,
	{interfaces.WearableSkin, interfaces.RegionUpper}: interfaces.ChannelUpperBodypaint,

	{interfaces.WearableSkirt, interfaces.RegionSkirt}: interfaces.ChannelSkirt,
	{interfaces.WearableSocks, interfaces.RegionLower}: interfaces.ChannelLowerSocks,

	{interfaces.WearableTattoo, interfaces.RegionHead}:  interfaces.ChannelHeadTattoo,
	{interfaces.WearableTattoo, interfaces.RegionLower}: interfaces.ChannelLowerTattoo,
	{interfaces.WearableTattoo, interfaces.RegionUpper}: interfaces.ChannelUpperTattoo,

	{interfaces.WearableUnderpants, interfaces.RegionLower}: interfaces.ChannelLowerUnderpants,
	{interfaces.WearableUndershirt, interfaces.RegionUpper}: interfaces.ChannelUpperUndershirt,
}

// ChannelFor returns the texture channel fed by a layer of the given category
// baked into region. The second result is false when no channel exists.
func ChannelFor(category interfaces.WearableCategory, region interfaces.BodyRegion) (interfaces.TextureChannel, bool) {
	ch, ok := channels[channelKey{category, region}]
	return ch, ok
}
