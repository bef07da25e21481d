package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	labelApp  = "app"
	labelKind = "snowclient/kind"
	appName   = "snowclient"

	annotationJobID   = "snowclient/job-id"
	annotationExpires = "expires"
)

var nonDNSChars = regexp.MustCompile(`[^a-z0-9]+`)

// KubernetesManager implements the Manager interface using Kubernetes ConfigMaps
type KubernetesManager struct {
	client    kubernetes.Interface
	namespace string
}

// NewKubernetesManager connects with the in-cluster configuration, or with
// kubeconfig when it is set
func NewKubernetesManager(namespace, kubeconfig string) (*KubernetesManager, error) {
	var (
		config *rest.Config
		err    error
	)
	if kubeconfig != "" {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		config, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kubernetes config: %v", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %v", err)
	}

	return NewKubernetesManagerWithClient(client, namespace), nil
}

// NewKubernetesManagerWithClient creates a manager over an existing client
func NewKubernetesManagerWithClient(client kubernetes.Interface, namespace string) *KubernetesManager {
	if namespace == "" {
		namespace = "default"
	}
	return &KubernetesManager{
		client:    client,
		namespace: namespace,
	}
}

func (k *KubernetesManager) GetState(ctx context.Context, jobID string) (*State, error) {
	cm, err := k.client.CoreV1().ConfigMaps(k.namespace).Get(ctx, configMapName("snowclient-state", jobID), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ConfigMap: %v", err)
	}

	var state State
	if err := json.Unmarshal([]byte(cm.Data["state"]), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %v", err)
	}
	return &state, nil
}

func (k *KubernetesManager) UpdateState(ctx context.Context, state *State) error {
	copied := *state
	copied.LastUpdated = time.Now()

	cm, err := stateConfigMap(&copied)
	if err != nil {
		return err
	}

	_, err = k.client.CoreV1().ConfigMaps(k.namespace).Update(ctx, cm, metav1.UpdateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to update ConfigMap: %v", err)
	}

	// If update fails because ConfigMap doesn't exist, create it
	if _, err := k.client.CoreV1().ConfigMaps(k.namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create ConfigMap: %v", err)
	}
	return nil
}

func (k *KubernetesManager) CreateState(ctx context.Context, state *State) error {
	cm, err := stateConfigMap(state)
	if err != nil {
		return err
	}

	if _, err := k.client.CoreV1().ConfigMaps(k.namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("state already exists for job %s", state.JobID)
		}
		return fmt.Errorf("failed to create ConfigMap: %v", err)
	}
	return nil
}

func (k *KubernetesManager) DeleteState(ctx context.Context, jobID string) error {
	err := k.client.CoreV1().ConfigMaps(k.namespace).Delete(ctx, configMapName("snowclient-state", jobID), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete ConfigMap: %v", err)
	}
	return nil
}

func (k *KubernetesManager) ListStates(ctx context.Context, table string) ([]*State, error) {
	list, err := k.client.CoreV1().ConfigMaps(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=state", labelApp, appName, labelKind),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ConfigMaps: %v", err)
	}

	var states []*State
	for _, cm := range list.Items {
		var state State
		if err := json.Unmarshal([]byte(cm.Data["state"]), &state); err != nil {
			continue // Skip invalid states
		}
		if matchesTable(&state, table) {
			states = append(states, &state)
		}
	}
	return states, nil
}

func (k *KubernetesManager) LockState(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	name := configMapName("snowclient-lock", key)
	now := time.Now()
	lock := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				labelApp:  appName,
				labelKind: "lock",
			},
			Annotations: map[string]string{
				annotationJobID:   key,
				annotationExpires: now.Add(ttl).Format(time.RFC3339),
			},
		},
		Data: map[string]string{
			"locked_at": now.Format(time.RFC3339),
		},
	}

	configMaps := k.client.CoreV1().ConfigMaps(k.namespace)
	_, err := configMaps.Create(ctx, lock, metav1.CreateOptions{})
	if err == nil {
		return true, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return false, fmt.Errorf("failed to create lock: %v", err)
	}

	// Lock already exists, take it over only once it has expired
	existing, err := configMaps.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to get lock: %v", err)
	}
	expires, err := time.Parse(time.RFC3339, existing.Annotations[annotationExpires])
	if err == nil && expires.After(now) {
		return false, nil
	}

	lock.ResourceVersion = existing.ResourceVersion
	if _, err := configMaps.Update(ctx, lock, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to take over expired lock: %v", err)
	}
	return true, nil
}

func (k *KubernetesManager) UnlockState(ctx context.Context, key string) error {
	err := k.client.CoreV1().ConfigMaps(k.namespace).Delete(ctx, configMapName("snowclient-lock", key), metav1.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete lock: %v", err)
	}
	return nil
}

func stateConfigMap(state *State) (*corev1.ConfigMap, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %v", err)
	}

	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name: configMapName("snowclient-state", state.JobID),
			Labels: map[string]string{
				labelApp:  appName,
				labelKind: "state",
			},
			Annotations: map[string]string{
				annotationJobID: state.JobID,
			},
		},
		Data: map[string]string{
			"state": string(data),
		},
	}, nil
}

// configMapName derives a valid object name from an arbitrary id. The hash
// suffix keeps ids that differ only in case or punctuation apart.
func configMapName(prefix, id string) string {
	sum := sha256.Sum256([]byte(id))
	slug := strings.Trim(nonDNSChars.ReplaceAllString(strings.ToLower(id), "-"), "-")
	if len(slug) > 200 {
		slug = slug[:200]
	}
	return prefix + "-" + slug + "-" + hex.EncodeToString(sum[:4])
}
