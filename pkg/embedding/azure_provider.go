package embedding

import (
	"context"
	"fmt"

	"devmemory-be/pkg/vector"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

type AzureProvider struct {
	client       *azopenai.Client
	deploymentID string
	dimension    int
}

func NewAzureProvider(endpoint, apiKey, deploymentID string, dimension int) (*AzureProvider, error) {
	if endpoint == "" || deploymentID == "" {
		return nil, fmt.Errorf("azure embedding provider needs an endpoint and a deployment")
	}
	client, err := azopenai.NewClientWithKeyCredential(endpoint, azcore.NewKeyCredential(apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating Azure OpenAI client: %w", err)
	}
	return &AzureProvider{
		client:       client,
		deploymentID: deploymentID,
		dimension:    dimension,
	}, nil
}

func (p *AzureProvider) Name() string   { return ProviderAzure }
func (p *AzureProvider) Model() string  { return p.deploymentID }
func (p *AzureProvider) Dimension() int { return p.dimension }

func (p *AzureProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.GetEmbeddings(ctx, azopenai.EmbeddingsOptions{
		Input:          []string{text},
		DeploymentName: to.Ptr(p.deploymentID),
		Dimensions:     to.Ptr(int32(p.dimension)),
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding received from deployment %s", p.deploymentID)
	}
	return vector.Normalize(resp.Data[0].Embedding), nil
}
