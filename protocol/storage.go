package protocol

// Category is the storage bucket an upload is filed under.
type Category string

const (
	CategoryFiles         Category = "files"
	CategoryStaticData    Category = "staticdata"
	CategoryMusicPlaylist Category = "musicplaylist"
)

// UploadedFile is one entry returned by the storage backend after an upload.
type UploadedFile struct {
	Hash       string   `json:"hash"`
	FileName   string   `json:"fileName"`
	MimeType   string   `json:"mimeType"`
	FolderHash string   `json:"folderHash"`
	Category   Category `json:"category"`
}

// IPNSRecord is the storage backend's answer to an IPNS publish.
type IPNSRecord struct {
	Key          string `json:"key"`
	Hash         string `json:"hash"`
	Address      string `json:"address"`
	PointingHash string `json:"pointingHash"`
	LastUpdated  int64  `json:"lastUpdated"`
}

type Creator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// MintConfig is the body of a bulk-mint request.
type MintConfig struct {
	MintForSolAddr       string    `json:"mintForSolAddr"`
	TokenName            string    `json:"tokenName"`
	MetadataOnIPFSURL    string    `json:"metadataOnIpfsUrl"`
	SellerFeeBasisPoints Bps       `json:"sellerFeeBasisPoints"`
	Creators             []Creator `json:"creators"`
	Quantity             int       `json:"quantity"`
}
