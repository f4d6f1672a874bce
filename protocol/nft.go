package protocol

import (
	"fmt"
)

const (
	musicExternalURL = "https://itheum.io/music"
	defaultDrop      = "20"
	defaultRarity    = "Common"
)

type NFTAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type NFTFile struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

type NFTProperties struct {
	Category string    `json:"category"`
	Files    []NFTFile `json:"files"`
}

// NFTMetadata is the off-chain JSON document a minted asset points to.
type NFTMetadata struct {
	AnimationURL string         `json:"animation_url"`
	Attributes   []NFTAttribute `json:"attributes"`
	Description  string         `json:"description"`
	ExternalURL  string         `json:"external_url"`
	Image        string         `json:"image"`
	Name         string         `json:"name"`
	Properties   NFTProperties  `json:"properties"`
	Symbol       string         `json:"symbol"`
}

type MusicNFTConfig struct {
	AnimationURL        string         `json:"animationUrl" yaml:"animation_url"`
	ItheumCreator       string         `json:"itheumCreator" yaml:"creator"`
	ItheumDataStreamURL string         `json:"itheumDataStreamUrl" yaml:"data_stream_url"`
	ImageURL            string         `json:"imageUrl" yaml:"image_url"`
	Name                string         `json:"name" yaml:"name"`
	Description         string         `json:"description" yaml:"description"`
	TokenCode           string         `json:"tokenCode" yaml:"token_code"`
	ItheumDrop          string         `json:"itheumDrop,omitempty" yaml:"drop"`
	PreviewMusicURL     string         `json:"previewMusicUrl,omitempty" yaml:"preview_music_url"`
	Rarity              string         `json:"rarity,omitempty" yaml:"rarity"`
	AdditionalTraits    []NFTAttribute `json:"additionalTraits,omitempty" yaml:"additional_traits"`
}

func (c MusicNFTConfig) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"animationUrl", c.AnimationURL},
		{"itheumCreator", c.ItheumCreator},
		{"itheumDataStreamUrl", c.ItheumDataStreamURL},
		{"tokenCode", c.TokenCode},
		{"description", c.Description},
		{"imageUrl", c.ImageURL},
		{"name", c.Name},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%w: missing required field: %s", ErrValidation, f.name)
		}
	}
	return nil
}

// BuildMusicNFTMetadata renders the metadata document for a music NFT.
func BuildMusicNFTMetadata(c MusicNFTConfig) (NFTMetadata, error) {
	if err := c.Validate(); err != nil {
		return NFTMetadata{}, err
	}

	drop := c.ItheumDrop
	if drop == "" {
		drop = defaultDrop
	}
	rarity := c.Rarity
	if rarity == "" {
		rarity = defaultRarity
	}

	attrs := []NFTAttribute{
		{TraitType: "App", Value: "itheum.io/music"},
		{TraitType: "ItheumDrop", Value: drop},
		{TraitType: "Type", Value: "Music"},
		{TraitType: "itheum_creator", Value: c.ItheumCreator},
		{TraitType: "itheum_data_stream_url", Value: c.ItheumDataStreamURL},
		{TraitType: "Rarity", Value: rarity},
		{TraitType: "TokenCode", Value: c.TokenCode},
	}
	attrs = append(attrs, c.AdditionalTraits...)

	return NFTMetadata{
		AnimationURL: c.AnimationURL,
		Attributes:   attrs,
		Description:  c.Description,
		ExternalURL:  musicExternalURL,
		Image:        c.ImageURL,
		Name:         c.Name,
		Properties: NFTProperties{
			Category: "audio",
			Files: []NFTFile{
				{Type: "image/gif", URI: c.ImageURL},
				{Type: "audio/mpeg", URI: c.AnimationURL},
			},
		},
		Symbol: "",
	}, nil
}
