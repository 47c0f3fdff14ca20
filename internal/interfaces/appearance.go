package interfaces

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// WearableCategory is a kind of avatar wearable carrying texture layers
type WearableCategory int

const (
	WearableAlpha WearableCategory = iota
	WearableEyes
	WearableGloves
	WearableJacket
	WearablePants
	WearableShirt
	WearableShoes
	WearableSkin
	WearableSkirt
	WearableSocks
	WearableTattoo
	WearableUnderpants
	WearableUndershirt
	wearableCategoryCount
)

var wearableCategoryNames = [...]string{
	"alpha", "eyes", "gloves", "jacket", "pants", "shirt", "shoes",
	"skin", "skirt", "socks", "tattoo", "underpants", "undershirt",
}

// WearableCategories lists every category that can carry local textures
func WearableCategories() []WearableCategory {
	categories := make([]WearableCategory, 0, wearableCategoryCount)
	for c := WearableAlpha; c < wearableCategoryCount; c++ {
		categories = append(categories, c)
	}
	return categories
}

func (c WearableCategory) String() string {
	if c < 0 || c >= wearableCategoryCount {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return wearableCategoryNames[c]
}

// ParseWearableCategory converts a category name such as "shirt"
func ParseWearableCategory(name string) (WearableCategory, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range wearableCategoryNames {
		if n == name {
			return WearableCategory(i), nil
		}
	}
	return 0, fmt.Errorf("unknown wearable category %q", name)
}

// BodyRegion is the baked region a texture layer composes into
type BodyRegion int

const (
	RegionHead BodyRegion = iota
	RegionUpper
	RegionLower
	RegionEyes
	RegionSkirt
	RegionHair
	bodyRegionCount
)

var bodyRegionNames = [...]string{"head", "upper", "lower", "eyes", "skirt", "hair"}

func (r BodyRegion) String() string {
	if r < 0 || r >= bodyRegionCount {
		return fmt.Sprintf("region(%d)", int(r))
	}
	return bodyRegionNames[r]
}

// ParseBodyRegion converts a region name such as "upper"
func ParseBodyRegion(name string) (BodyRegion, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range bodyRegionNames {
		if n == name {
			return BodyRegion(i), nil
		}
	}
	return 0, fmt.Errorf("unknown body region %q", name)
}

// TextureChannel is a specific avatar texture slot fed by a wearable layer
type TextureChannel int

const (
	ChannelHeadBodypaint TextureChannel = iota
	ChannelUpperShirt
	ChannelLowerPants
	ChannelEyesIris
	ChannelUpperBodypaint
	ChannelLowerBodypaint
	ChannelLowerShoes
	ChannelUpperGloves
	ChannelUpperUndershirt
	ChannelLowerUnderpants
	ChannelSkirt
	ChannelLowerSocks
	ChannelUpperJacket
	ChannelLowerJacket
	ChannelHeadAlpha
	ChannelUpperAlpha
	ChannelLowerAlpha
	ChannelEyesAlpha
	ChannelHairAlpha
	ChannelHeadTattoo
	ChannelUpperTattoo
	ChannelLowerTattoo
	textureChannelCount
)

var textureChannelNames = [...]string{
	"head_bodypaint", "upper_shirt", "lower_pants", "eyes_iris",
	"upper_bodypaint", "lower_bodypaint", "lower_shoes", "upper_gloves",
	"upper_undershirt", "lower_underpants", "skirt", "lower_socks",
	"upper_jacket", "lower_jacket", "head_alpha", "upper_alpha",
	"lower_alpha", "eyes_alpha", "hair_alpha", "head_tattoo",
	"upper_tattoo", "lower_tattoo",
}

func (c TextureChannel) String() string {
	if c < 0 || c >= textureChannelCount {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return textureChannelNames[c]
}

// Appearance is the avatar's wearable stack
type Appearance interface {
	WearableCount(category WearableCategory) int
	// Wearable returns false when the slot is empty
	Wearable(category WearableCategory, index int) (Wearable, bool)
	SetLocalTexture(category WearableCategory, index int, channel TextureChannel, id uuid.UUID)
	WearableUpdated(category WearableCategory)
	// Recompose re-derives the composed appearance from the whole layer stack
	Recompose()
}

// Wearable is one worn item in a category slot
type Wearable interface {
	Layers() []WearableLayer
}

// WearableLayer is a texture layer of a wearable
type WearableLayer interface {
	TextureID() uuid.UUID
	// Region returns false when the layer is not linked to a baked region
	Region() (BodyRegion, bool)
}
