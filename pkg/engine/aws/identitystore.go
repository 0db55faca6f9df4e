package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
)

// IdentityStoreAPI is the subset of the Identity Store client used for user listing.
type IdentityStoreAPI interface {
	ListUsers(ctx context.Context, params *identitystore.ListUsersInput, optFns ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error)
}

// DirectoryUser pairs an Identity Center user id with the primary email address.
type DirectoryUser struct {
	UserID string
	Email  string
}

// Directory lists users of one identity store.
type Directory struct {
	Client  IdentityStoreAPI
	StoreID string
}

func NewDirectory(cfg aws.Config, storeID string) *Directory {
	return &Directory{
		Client:  identitystore.NewFromConfig(cfg),
		StoreID: storeID,
	}
}

// ListUsers walks every page. Users without a primary email get an empty Email.
func (d *Directory) ListUsers(ctx context.Context) ([]DirectoryUser, error) {
	paginator := identitystore.NewListUsersPaginator(d.Client, &identitystore.ListUsersInput{
		IdentityStoreId: aws.String(d.StoreID),
	})

	var users []DirectoryUser
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users in %s: %w", d.StoreID, err)
		}
		for _, u := range page.Users {
			user := DirectoryUser{UserID: aws.ToString(u.UserId)}
			for _, e := range u.Emails {
				if e.Primary {
					user.Email = aws.ToString(e.Value)
					break
				}
			}
			users = append(users, user)
		}
	}
	return users, nil
}
