package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
)

const addressBookPath = "/addressBook"

// ListAddresses returns the caller's address book.
func (c *Client) ListAddresses(ctx context.Context) ([]entities.AddressBookEntry, error) {
	var resp envelope[[]entities.AddressBookEntry]
	if err := c.doRequest(ctx, http.MethodGet, addressBookPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("list addresses failed: %w", err)
	}
	return resp.Data, nil
}

// SearchAddresses finds entries whose nickname matches query.
func (c *Client) SearchAddresses(ctx context.Context, query string) ([]entities.AddressBookEntry, error) {
	var resp envelope[[]entities.AddressBookEntry]
	endpoint := addressBookPath + "/search?query=" + url.QueryEscape(query)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("search addresses failed: %w", err)
	}
	return resp.Data, nil
}

// GetAddressByNickname looks up a single entry.
func (c *Client) GetAddressByNickname(ctx context.Context, nickname string) (*entities.AddressBookEntry, error) {
	var resp envelope[entities.AddressBookEntry]
	if err := c.doRequest(ctx, http.MethodGet, addressBookPath+"/"+url.PathEscape(nickname), nil, &resp); err != nil {
		return nil, fmt.Errorf("get address failed: %w", err)
	}
	return &resp.Data, nil
}

// AddAddress stores a nickname for a wallet address.
func (c *Client) AddAddress(ctx context.Context, nickname, walletAddress, email string) (*entities.AddressBookEntry, error) {
	payload := addAddressPayload{Nickname: nickname, WalletAddress: walletAddress, Email: email}
	var resp envelope[entities.AddressBookEntry]
	if err := c.doRequest(ctx, http.MethodPost, addressBookPath, payload, &resp); err != nil {
		return nil, fmt.Errorf("add address failed: %w", err)
	}
	return &resp.Data, nil
}

// UpdateAddress changes the entry stored under nickname.
func (c *Client) UpdateAddress(ctx context.Context, nickname string, update *AddressUpdate) (*entities.AddressBookEntry, error) {
	var resp envelope[entities.AddressBookEntry]
	if err := c.doRequest(ctx, http.MethodPatch, addressBookPath+"/"+url.PathEscape(nickname), update, &resp); err != nil {
		return nil, fmt.Errorf("update address failed: %w", err)
	}
	return &resp.Data, nil
}

// DeleteAddress removes the entry stored under nickname.
func (c *Client) DeleteAddress(ctx context.Context, nickname string) error {
	if err := c.doRequest(ctx, http.MethodDelete, addressBookPath+"/"+url.PathEscape(nickname), nil, nil); err != nil {
		return fmt.Errorf("delete address failed: %w", err)
	}
	return nil
}

// AddContactFromInvoice saves the invoice's counterparty as a contact.
func (c *Client) AddContactFromInvoice(ctx context.Context, invoiceID string) (*entities.AddressBookEntry, error) {
	var resp envelope[entities.AddressBookEntry]
	if err := c.doRequest(ctx, http.MethodPost, addressBookPath+"/from-invoice", fromInvoicePayload{InvoiceID: invoiceID}, &resp); err != nil {
		return nil, fmt.Errorf("add contact from invoice failed: %w", err)
	}
	return &resp.Data, nil
}
