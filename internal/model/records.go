package model

import "time"

type District struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Collage struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	District  int64     `json:"district"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Collage   int64     `json:"collage,omitempty"`
	District  int64     `json:"district,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type FinancialRecord struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	// Decimal amount kept as the backend's string form to avoid float rounding.
	Amount     string    `json:"amount"`
	RecordType string    `json:"record_type"`
	Date       string    `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
}

type Timetable struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Day       string    `json:"day,omitempty"`
	StartTime string    `json:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Image struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Image      string    `json:"image"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Writing struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID      int64     `json:"id"`
	Sender  int64     `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}
