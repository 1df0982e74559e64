package mercury

import "encoding/json"

// GetJSON issues a Mercury GET for uri and unmarshals the response payload
// as JSON into out when the status is in 200..299.
func (c *Client) GetJSON(uri string, out interface{}) error {
	resp, err := c.SendSync(Header{URI: uri, Method: MethodGet})
	if err != nil {
		return err
	}
	if len(resp.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Payload, out)
}
