package models

// Video is one cataloged content entry. FileID is the transport-assigned
// content handle and may be refreshed at any time; FileUniqueID is the
// stable content identity key used for dedup. StorageChatID/StorageMessageID
// point at the durable archive copy in the vault channel.
type Video struct {
	ID            int64
	Title         string
	FileID        string
	FileUniqueID  string
	SourceURL     string
	SourceURLNorm string
	StorageChat   int64
	StorageMsg    int64
	NeedsRefresh  bool
	CreatedAt     string
}

// HasArchiveRef reports whether a vault copy has been recorded for the video.
func (v *Video) HasArchiveRef() bool {
	return v.StorageChat != 0 && v.StorageMsg != 0
}

// Category is one entry of the fixed tag vocabulary.
type Category struct {
	ID   int64
	Name string
}

// AccessRecord is a principal's subscription row. ExpiresAt is unix seconds;
// nil means unlimited access. IsBanned and ExpiresAt are independent axes.
type AccessRecord struct {
	PrincipalID int64
	DisplayName string
	ExpiresAt   *int64
	IsBanned    bool
	Note        string
	CreatedAt   int64
	UpdatedAt   int64
}

// Unlimited reports whether the record grants access with no deadline.
func (r *AccessRecord) Unlimited() bool { return r.ExpiresAt == nil }
