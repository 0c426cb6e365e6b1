// Package testing provides reusable model fixtures for the test suites
package testing

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/textwave/textwave/models"
	"github.com/textwave/textwave/utils"
)

// NewImportJob builds a pending import job for the given owner.
func NewImportJob(ownerID uint) *models.ImportJob {
	return &models.ImportJob{
		UUID:      uuid.New(),
		OwnerID:   ownerID,
		Filename:  "contacts.csv",
		FileSize:  1024,
		Status:    models.ImportJobStatusPending,
		CreatedAt: utils.UTCNow(),
		UpdatedAt: utils.UTCNow(),
	}
}

// NewCompletedImportJob builds a successful job with the given contact count.
func NewCompletedImportJob(ownerID uint, rows int64) *models.ImportJob {
	job := NewImportJob(ownerID)
	job.Status = models.ImportJobStatusSuccess
	job.RowsTotal = rows
	job.RowsProcessed = rows
	job.StartedAt = utils.UTCNowPtr()
	job.CompletedAt = utils.UTCNowPtr()
	job.Metadata.RowsSuccessful = rows
	return job
}

// NewContact builds a contact with a random valid-looking US number.
func NewContact(importID uint, row int) *models.Contact {
	phone := fmt.Sprintf("+1415555%04d", rand.Intn(10000))
	return &models.Contact{
		ImportID:     importID,
		Phone:        phone,
		Name:         utils.ToPtr("Test Contact"),
		Tags:         models.ContactTags{},
		CSVRowNumber: row,
		RawData:      models.RawRow{"phone": phone},
		CreatedAt:    utils.UTCNow(),
	}
}

// NewContacts builds n contacts with distinct phone numbers.
func NewContacts(importID uint, n int) []*models.Contact {
	contacts := make([]*models.Contact, 0, n)
	for i := 0; i < n; i++ {
		c := NewContact(importID, i+2)
		c.Phone = fmt.Sprintf("+1415555%04d", i)
		contacts = append(contacts, c)
	}
	return contacts
}

// NewCampaign builds a draft virtual campaign bound to an import job.
func NewCampaign(userID, importJobID uint, total int64) *models.Campaign {
	return &models.Campaign{
		UUID:          uuid.New(),
		UserID:        userID,
		Name:          "Test Campaign",
		Status:        models.CampaignStatusDraft,
		MessageText:   "Hello from the test suite",
		TotalMessages: total,
		Settings: models.CampaignSettings{
			VirtualMessaging: true,
			ImportJobID:      &importJobID,
		},
		CreatedAt: utils.UTCNow(),
		UpdatedAt: utils.UTCNow(),
	}
}

// NewMessage builds a pending outbound message.
func NewMessage(campaignID uint, phone string) *models.Message {
	return &models.Message{
		CustomID:    uuid.New(),
		CampaignID:  campaignID,
		PhoneNumber: phone,
		Text:        "Hello from the test suite",
		Status:      models.MessageStatusPending,
		CreatedAt:   utils.UTCNow(),
		UpdatedAt:   utils.UTCNow(),
	}
}
