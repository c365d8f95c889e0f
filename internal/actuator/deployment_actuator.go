/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package actuator

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	cached "k8s.io/client-go/discovery/cached"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/scale"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// deploymentGR is the group/resource of the scale subresource target.
var deploymentGR = schema.GroupResource{Group: "apps", Resource: "deployments"}

// DeploymentActuator converges a single Deployment to an approved replica
// count through the scale subresource. Re-issuing the same count is a
// no-op. It performs no internal retries: on failure the action is
// abandoned for the cycle and the periodic loop retries naturally.
type DeploymentActuator struct {
	scaleClient scale.ScalesGetter
	namespace   string
	name        string
}

// NewDeploymentActuator creates an actuator for the given Deployment
// using an existing scale client. Used directly by tests with a fake
// ScalesGetter.
func NewDeploymentActuator(scaleClient scale.ScalesGetter, namespace, name string) *DeploymentActuator {
	return &DeploymentActuator{
		scaleClient: scaleClient,
		namespace:   namespace,
		name:        name,
	}
}

// NewFromConfig builds the scale client from a rest.Config and wraps it.
func NewFromConfig(config *rest.Config, namespace, name string) (*DeploymentActuator, error) {
	scaleClient, err := initScaleClient(config)
	if err != nil {
		return nil, err
	}
	return NewDeploymentActuator(scaleClient, namespace, name), nil
}

// CurrentReplicas reads the Deployment's desired replica count. Used to
// seed the scaling state at startup.
func (a *DeploymentActuator) CurrentReplicas(ctx context.Context) (int32, error) {
	scaleObj, err := a.scaleClient.Scales(a.namespace).Get(ctx, deploymentGR, a.name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to read scale of %s/%s: %w", a.namespace, a.name, err)
	}
	return scaleObj.Spec.Replicas, nil
}

// ScaleTo requests the orchestrator to converge the Deployment to the
// given replica count. Idempotent: a matching current count skips the
// update entirely.
func (a *DeploymentActuator) ScaleTo(ctx context.Context, replicas int32) error {
	logger := log.FromContext(ctx)

	scaleObj, err := a.scaleClient.Scales(a.namespace).Get(ctx, deploymentGR, a.name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to read scale of %s/%s: %w", a.namespace, a.name, err)
	}

	if scaleObj.Spec.Replicas == replicas {
		logger.Info("Deployment already has the desired number of replicas. Skipping scaling",
			"deployment", a.name, "replicas", replicas)
		return nil
	}

	currentReplicas := scaleObj.Spec.Replicas
	scaleObj.Spec.Replicas = replicas
	if _, err := a.scaleClient.Scales(a.namespace).Update(ctx, deploymentGR, scaleObj, metav1.UpdateOptions{}); err != nil {
		logger.Error(err, "Failed to scale deployment",
			"namespace", a.namespace, "name", a.name, "target", replicas)
		return err
	}

	logger.Info("Successfully updated deployment scale",
		"Original Replicas Count", currentReplicas,
		"New Replicas Count", replicas)
	return nil
}

// initScaleClient initializes scale client
func initScaleClient(config *rest.Config) (scale.ScalesGetter, error) {
	clientset, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, err
	}

	cachedDiscoveryClient := cached.NewMemCacheClient(clientset)
	restMapper := restmapper.NewDeferredDiscoveryRESTMapper(cachedDiscoveryClient)

	return scale.New(
		clientset.RESTClient(), restMapper,
		dynamic.LegacyAPIPathResolverFunc,
		scale.NewDiscoveryScaleKindResolver(clientset),
	), nil
}
